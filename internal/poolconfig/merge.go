package poolconfig

// Merge flattens raw for env. Defaults are copied first, then every entry of
// the block named env (if any) overwrites the default with the same key.
// Blocks for other environments are ignored. An empty env means no
// environment was resolved and only defaults apply.
func Merge(raw RawConfig, env string) Effective {
	out := make(Effective, len(raw))
	for key, value := range raw {
		if value.IsBlock() {
			continue
		}
		out[key] = value.Count
	}

	if env == "" {
		return out
	}
	value, ok := raw[env]
	if !ok || !value.IsBlock() {
		return out
	}
	for key, count := range value.Block {
		out[key] = count
	}
	return out
}
