package util

// NextKey calculates the closest next key immediately following the
// given key. Returns nil when no such key exists.
func NextKey(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	var nextKey []byte
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] < 0xff {
			nextKey = make([]byte, i+1)
			copy(nextKey, key)
			nextKey[i]++
			break
		}
	}
	return nextKey
}
