package playgen

import "time"

// Config holds the shape of a synthetic season.
type Config struct {
	Games        int       // number of games
	GamesPerDay  int       // games sharing a calendar day
	PlaysPerGame int       // plate appearances per game
	Batters      int       // size of the batter pool
	Pitchers     int       // size of the pitcher pool
	StarterPlays int       // plays a starter faces before a reliever comes in
	Seed         uint64    // makes output reproducible
	Start        time.Time // date of the first game
	// DescriptionRate is the share of rows carrying a play-by-play
	// description instead of an outcome name.
	DescriptionRate float64
	// NoiseRate is the share of extra rows that are not plate appearances
	// (steals, pickoffs); readers skip them.
	NoiseRate float64
}

// DefaultConfig returns a small season that still spans many layers.
func DefaultConfig() Config {
	return Config{
		Games:           162,
		GamesPerDay:     4,
		PlaysPerGame:    76,
		Batters:         120,
		Pitchers:        40,
		StarterPlays:    25,
		Seed:            1,
		Start:           time.Date(2019, 3, 28, 0, 0, 0, 0, time.UTC),
		DescriptionRate: 0.5,
		NoiseRate:       0.02,
	}
}

// Stats counts what was generated.
type Stats struct {
	Games int
	Rows  int
	Plays int
	Noise int
}
