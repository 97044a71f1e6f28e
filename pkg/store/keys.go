package store

import (
	"fmt"

	"github.com/koelabs/koe/pkg/kv"
)

// Key layout:
//
//	profile:{name}      → msgpack voiceid.VoiceProfile
//	command:{seq}:{id}  → msgpack detect.VoiceCommand
//	settings:pipeline   → msgpack detect.Settings
//
// Command keys carry a zero-padded sequence number so lexicographic kv
// order preserves list order; list order is match priority. SaveCommands
// rewrites the whole sequence, so stale entries from a longer previous
// list cannot survive.

func profileKey(name string) kv.Key {
	return kv.Key{"profile", name}
}

func profilePrefix() kv.Key {
	return kv.Key{"profile"}
}

func commandKey(seq int, id string) kv.Key {
	return kv.Key{"command", fmt.Sprintf("%04d", seq), id}
}

func commandPrefix() kv.Key {
	return kv.Key{"command"}
}

func settingsKey() kv.Key {
	return kv.Key{"settings", "pipeline"}
}
