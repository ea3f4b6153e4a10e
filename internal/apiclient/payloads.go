package apiclient

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Profile is the data of PathProfile.
type Profile struct {
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

// Name prefers the display name.
func (p Profile) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return strings.TrimSpace(p.Username)
}

// Balance is the data of PathPointsBalance.
type Balance struct {
	Balance Points `json:"balance"`
}

// CheckinStatus is the data of PathCheckinStatus.
type CheckinStatus struct {
	CheckedIn bool `json:"checked_in"`
}

// CheckinResult is the data of a successful PathCheckin.
type CheckinResult struct {
	Reward     Points `json:"reward"`
	StreakDays int    `json:"streak_days"`
}

// Points accepts integers, floats and numeric strings; fractions are truncated.
type Points int64

func (p *Points) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*p = 0
		return nil
	}
	if uq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(uq)
	}
	n := json.Number(s)
	if i, err := n.Int64(); err == nil {
		*p = Points(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("points: invalid number %q", s)
	}
	*p = Points(int64(f))
	return nil
}
