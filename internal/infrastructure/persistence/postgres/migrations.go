package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_ledger_and_stats",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_badges_and_challenges",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_leaderboard_and_inbox",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEDGER AND STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Append-only point ledger. dedup_key is NULL for allow-multiple awards,
-- and NULLs never collide in the unique constraint.
CREATE TABLE IF NOT EXISTS point_entries (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    source_type VARCHAR(20) NOT NULL,
    source_id VARCHAR(100) NOT NULL DEFAULT '',
    points BIGINT NOT NULL,
    reason VARCHAR(20) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    course_id BIGINT,
    dedup_key VARCHAR(200),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_point_entries_dedup UNIQUE (user_id, dedup_key),
    CONSTRAINT valid_source_type CHECK (source_type IN ('lesson', 'assignment', 'attempt', 'challenge', 'system')),
    CONSTRAINT valid_reason CHECK (reason IN ('completion', 'score', 'bonus', 'penalty')),
    CONSTRAINT valid_points CHECK ((reason = 'penalty' AND points < 0) OR (reason <> 'penalty' AND points > 0))
);

CREATE INDEX IF NOT EXISTS idx_point_entries_user ON point_entries(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_entries_course ON point_entries(course_id, user_id) WHERE course_id IS NOT NULL;

-- Denormalized per-user aggregate, only written by the stat aggregator.
CREATE TABLE IF NOT EXISTS user_gamification_stats (
    user_id BIGINT PRIMARY KEY,
    total_xp BIGINT NOT NULL DEFAULT 0,
    total_points BIGINT NOT NULL DEFAULT 0,
    global_level INTEGER NOT NULL DEFAULT 1,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    total_badges INTEGER NOT NULL DEFAULT 0,
    completed_challenges INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    stats_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (global_level >= 1),
    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_stats_total_xp ON user_gamification_stats(total_xp DESC, user_id);
CREATE INDEX IF NOT EXISTS idx_stats_last_activity ON user_gamification_stats(last_activity_date);
`

const migration001Down = `
DROP TABLE IF EXISTS user_gamification_stats;
DROP TABLE IF EXISTS point_entries;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: BADGES AND CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS badges (
    id UUID PRIMARY KEY,
    code VARCHAR(100) NOT NULL UNIQUE,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(200) NOT NULL DEFAULT '',
    type VARCHAR(20) NOT NULL DEFAULT 'achievement',
    threshold INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_badge_type CHECK (type IN ('achievement', 'milestone', 'completion'))
);

CREATE TABLE IF NOT EXISTS user_badges (
    user_id BIGINT NOT NULL,
    badge_id UUID NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_user_badges_user ON user_badges(user_id, earned_at DESC);

CREATE TABLE IF NOT EXISTS challenges (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type VARCHAR(20) NOT NULL,
    criteria_type VARCHAR(40) NOT NULL,
    criteria_target BIGINT NOT NULL,
    points_reward BIGINT NOT NULL DEFAULT 0,
    badge_id UUID REFERENCES badges(id),
    start_at TIMESTAMP WITH TIME ZONE NOT NULL,
    end_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_challenge_type CHECK (type IN ('daily', 'weekly', 'special')),
    CONSTRAINT valid_target CHECK (criteria_target > 0),
    CONSTRAINT valid_reward CHECK (points_reward >= 0),
    CONSTRAINT special_has_end CHECK (type <> 'special' OR end_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_challenges_type_window ON challenges(type, start_at, end_at);

CREATE TABLE IF NOT EXISTS user_challenge_assignments (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
    assigned_date DATE NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    current_progress BIGINT NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE,
    reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_assignment_period UNIQUE (user_id, challenge_id, assigned_date),
    CONSTRAINT valid_assignment_status CHECK (status IN ('pending', 'in_progress', 'completed', 'claimed', 'expired')),
    CONSTRAINT valid_progress CHECK (current_progress >= 0)
);

CREATE INDEX IF NOT EXISTS idx_assignments_user_status ON user_challenge_assignments(user_id, status);
CREATE INDEX IF NOT EXISTS idx_assignments_open_expiry ON user_challenge_assignments(expires_at)
    WHERE status IN ('pending', 'in_progress');
`

const migration002Down = `
DROP TABLE IF EXISTS user_challenge_assignments;
DROP TABLE IF EXISTS challenges;
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS badges;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: LEADERBOARD AND INBOX
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- course_id NULL is the global scope.
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    course_id BIGINT,
    user_id BIGINT NOT NULL,
    total_points BIGINT NOT NULL,
    rank INTEGER NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_rank CHECK (rank >= 1)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_leaderboard_scope_user
    ON leaderboard_entries ((COALESCE(course_id, 0)), user_id);
CREATE INDEX IF NOT EXISTS idx_leaderboard_scope_rank
    ON leaderboard_entries ((COALESCE(course_id, 0)), rank);

-- Keys of learning events that were fully processed.
CREATE TABLE IF NOT EXISTS processed_events (
    event_key VARCHAR(200) PRIMARY KEY,
    processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS processed_events;
DROP TABLE IF EXISTS leaderboard_entries;
`
