package redis

// KeyPrefixCooldown namespaces cooldown acceptance keys.
const KeyPrefixCooldown = "adbwatch:cooldown:"

// CooldownKey returns the Redis key for a normalized source path.
func CooldownKey(key string) string {
	return KeyPrefixCooldown + key
}
