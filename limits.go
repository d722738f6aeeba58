package main

// maxSyncAwaiters bounds how many server-initiated sync requests
// (Processor.RequestSync) may be outstanding at once, protecting the
// correlator map from unbounded growth if a caller forgets to consume
// replies.
const maxSyncAwaiters = 1000
