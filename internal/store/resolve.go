package store

// ResolveUID picks the permanent page uid by precedence: the uid already on
// disk, then the uid recorded in the index, then the caller's uid. ok is false
// when none is set and a fresh uid must be generated.
func ResolveUID(onDisk, indexed, caller string) (uid string, ok bool) {
	for _, candidate := range []string{onDisk, indexed, caller} {
		if candidate != "" {
			return candidate, true
		}
	}
	return "", false
}

// ResolveCreatedAt picks the creation time by precedence: a positive on-disk
// value, then a positive caller value, then now.
func ResolveCreatedAt(onDisk, caller, now int64) int64 {
	if onDisk > 0 {
		return onDisk
	}
	if caller > 0 {
		return caller
	}
	return now
}

// ResolveUpdatedAt returns now, raised to createdAt and to the previously
// persisted value so that updated_at >= created_at holds and updated_at never
// moves backwards when the clock does.
func ResolveUpdatedAt(createdAt, previous, now int64) int64 {
	return max(now, createdAt, previous)
}

// ResolveViewCount keeps the persisted counter when a record exists; callers
// cannot reset it through an update.
func ResolveViewCount(onDisk *PageMeta, caller uint64) uint64 {
	if onDisk != nil {
		return onDisk.ViewCount
	}
	return caller
}

// ResolveOriginalID keeps a previously recorded original id, otherwise records
// the caller id when sanitization changed it.
func ResolveOriginalID(previous, callerID, safeID string) string {
	if previous != "" {
		return previous
	}
	if callerID != safeID {
		return callerID
	}
	return ""
}
