package kv

// Session rows are stored under their 36-character id so lookups are a
// single point read; age-based cleanup scans the bucket, which stays small
// because the sweeper caps row lifetime at a day.
var (
	sessionsBucket = []byte("sessions")
)
