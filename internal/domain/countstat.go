package domain

// CountStat tracks how deploys using a given number of squares performed.
type CountStat struct {
	Count         int     `json:"count"`
	TimesUsed     uint64  `json:"times_used"`
	TimesWon      uint64  `json:"times_won"`
	TotalDeployed uint64  `json:"total_deployed"` // lamports
	TotalWon      uint64  `json:"total_won"`      // lamports
	TotalORE      float64 `json:"total_ore"`
	WinRate       float64 `json:"win_rate"`
	ROI           float64 `json:"roi"`
	AvgOREEarned  float64 `json:"avg_ore_earned"`
}

// CountStats is indexed by square count; index 0 is unused.
type CountStats [BoardSize + 1]CountStat

// NewCountStats returns a table with each entry's Count set.
func NewCountStats() CountStats {
	var c CountStats
	for i := range c {
		c[i].Count = i
	}
	return c
}

// Recompute derives the rates of entry n from its counters.
func (c *CountStats) Recompute(n int) {
	if n <= 0 || n > BoardSize {
		return
	}
	s := &c[n]
	used := s.TimesUsed
	if used == 0 {
		used = 1
	}
	s.WinRate = float64(s.TimesWon) / float64(used)
	if s.TotalDeployed > 0 {
		s.ROI = (float64(s.TotalWon) - float64(s.TotalDeployed)) / float64(s.TotalDeployed)
	} else {
		s.ROI = 0
	}
	if s.TimesWon > 0 {
		s.AvgOREEarned = s.TotalORE / float64(s.TimesWon)
	} else {
		s.AvgOREEarned = 0
	}
}
