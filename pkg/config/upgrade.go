// Copyright 2024-2026 Aiku AI

package config

import (
	up "go.mau.fi/util/configupgrade"
)

// upgradeConfig copies user values onto the example config so that new
// settings appear with their defaults and unknown keys are dropped.
func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "platform")

	helper.Copy(up.Str|up.Null, "mattermost", "server_url")
	helper.Copy(up.Str|up.Null, "mattermost", "access_token")
	helper.Copy(up.Str|up.Null, "mattermost", "bot_prefix")

	helper.Copy(up.Str|up.Null, "telegram", "bot_token")
	helper.Copy(up.Str|up.Null, "telegram", "api_endpoint")

	helper.Copy(up.Str, "session", "name")
	helper.Copy(up.Str, "session", "dir")

	helper.Copy(up.List, "relay", "sources")
	helper.Copy(up.List, "relay", "targets")
	helper.Copy(up.Int|up.Float, "relay", "delay")
	helper.Copy(up.Int, "relay", "max_rate_limit_retries")

	helper.Copy(up.Map, "logging")
}
