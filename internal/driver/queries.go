package driver

var IndexQueries = []string{
	"CREATE INDEX ON :DedupSession(uuid);",
	"CREATE INDEX ON :DedupSession(accessed_at);",
}

const (
	// CreateSessionQuery writes nothing when the uuid already exists.
	CreateSessionQuery = `
		OPTIONAL MATCH (existing:DedupSession {uuid: $uuid})
		WITH existing
		WHERE existing IS NULL
		CREATE (s:DedupSession {
			uuid: $uuid,
			version: $version,
			filename: $filename,
			created_at: $created_at,
			updated_at: $updated_at,
			accessed_at: $updated_at,
			analyzed: $analyzed,
			payload: $payload
		})
		RETURN count(s) AS saved
	`

	// UpdateSessionQuery writes only over the expected version.
	UpdateSessionQuery = `
		MATCH (s:DedupSession {uuid: $uuid})
		WHERE s.version = $expected
		SET s.version = $version,
			s.filename = $filename,
			s.updated_at = $updated_at,
			s.accessed_at = $updated_at,
			s.analyzed = $analyzed,
			s.payload = $payload
		RETURN count(s) AS saved
	`

	GetSessionQuery = `
		MATCH (s:DedupSession {uuid: $uuid})
		SET s.accessed_at = $accessed_at
		RETURN s.payload AS payload
	`

	DeleteSessionQuery = `
		MATCH (s:DedupSession {uuid: $uuid})
		DETACH DELETE s
		RETURN count(s) AS deleted
	`

	DeleteIdleSessionsQuery = `
		MATCH (s:DedupSession)
		WHERE s.accessed_at < $cutoff
		DETACH DELETE s
		RETURN count(s) AS deleted
	`
)
