package reputation

import (
	"github.com/bytedance/sonic"
)

const historyKeyPrefix = "ip:history:"

func historyKey(userID string) string {
	return historyKeyPrefix + userID
}

// Entry is one remembered address in a user's IP history, in the exact
// shape it is stored in. Instants are epoch milliseconds.
type Entry struct {
	IP        string                 `json:"ip"`
	FirstSeen int64                  `json:"firstSeen"`
	LastSeen  int64                  `json:"lastSeen"`
	Count     int                    `json:"count"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func encodeHistory(entries []Entry) (string, error) {
	data, err := sonic.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHistory(raw string) ([]Entry, error) {
	var entries []Entry
	if err := sonic.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// findEntry returns the index of ip in entries, or -1.
func findEntry(entries []Entry, ip string) int {
	for i := range entries {
		if entries[i].IP == ip {
			return i
		}
	}
	return -1
}

// evictOldest removes the entry with the oldest lastSeen. The entry
// just recorded always carries the newest lastSeen, so it never loses.
func evictOldest(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	oldest := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].LastSeen < entries[oldest].LastSeen {
			oldest = i
		}
	}
	return append(entries[:oldest], entries[oldest+1:]...)
}
