package postgres

// Migration is one embedded schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_quest_snapshots",
			UpSQL:   createQuestSnapshotsUp,
			DownSQL: createQuestSnapshotsDown,
		},
	}
}

// One row per actor-scoped key; the key is already a digest of the actor id.
const createQuestSnapshotsUp = `
CREATE TABLE IF NOT EXISTS quest_snapshots (
    key VARCHAR(255) PRIMARY KEY,
    payload JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_quest_snapshots_updated_at ON quest_snapshots(updated_at DESC);
`

const createQuestSnapshotsDown = `
DROP TABLE IF EXISTS quest_snapshots;
`
