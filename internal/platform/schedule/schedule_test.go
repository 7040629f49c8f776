package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Clock
	}{
		{name: "two digit", value: "06:50", want: Clock{Hour: 6, Minute: 50}},
		{name: "single digit hour", value: "6:05", want: Clock{Hour: 6, Minute: 5}},
		{name: "midnight", value: "00:00", want: Clock{}},
		{name: "last minute", value: "23:59", want: Clock{Hour: 23, Minute: 59}},
		{name: "surrounding whitespace", value: " 07:00 ", want: Clock{Hour: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClockErrors(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "empty", value: "", wantErr: ErrTimeFormat},
		{name: "no colon", value: "0650", wantErr: ErrTimeFormat},
		{name: "single digit minute", value: "06:5", wantErr: ErrTimeFormat},
		{name: "too many parts", value: "06:50:00", wantErr: ErrTimeFormat},
		{name: "hour too large", value: "24:00", wantErr: ErrHourOutOfRange},
		{name: "negative hour", value: "-1:00", wantErr: ErrHourOutOfRange},
		{name: "minute too large", value: "06:60", wantErr: ErrInvalidMinute},
		{name: "hour not a number", value: "aa:30", wantErr: ErrInvalidHour},
		{name: "minute not a number", value: "06:bb", wantErr: ErrInvalidMinute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClock(tt.value)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeTimeHMPads(t *testing.T) {
	got, err := NormalizeTimeHM("6:05")
	require.NoError(t, err)
	assert.Equal(t, "06:05", got)
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "06:05", Clock{Hour: 6, Minute: 5}.String())
}

func TestClockMinutes(t *testing.T) {
	assert.Equal(t, 410, Clock{Hour: 6, Minute: 50}.Minutes())
	assert.Equal(t, 0, Clock{}.Minutes())
}

func TestClockNext(t *testing.T) {
	clock := Clock{Hour: 6, Minute: 50}

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "before the clock fires same day",
			after: time.Date(2025, 3, 14, 5, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 3, 14, 6, 50, 0, 0, time.UTC),
		},
		{
			name:  "exactly at the clock rolls to next day",
			after: time.Date(2025, 3, 14, 6, 50, 0, 0, time.UTC),
			want:  time.Date(2025, 3, 15, 6, 50, 0, 0, time.UTC),
		},
		{
			name:  "after the clock rolls to next day",
			after: time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 3, 15, 6, 50, 0, 0, time.UTC),
		},
		{
			name:  "crosses month boundary",
			after: time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC),
			want:  time.Date(2025, 4, 1, 6, 50, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clock.Next(tt.after))
		})
	}
}

func TestClockPrev(t *testing.T) {
	clock := Clock{Hour: 6, Minute: 50}

	tests := []struct {
		name   string
		before time.Time
		want   time.Time
	}{
		{
			name:   "after the clock stays same day",
			before: time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC),
			want:   time.Date(2025, 3, 14, 6, 50, 0, 0, time.UTC),
		},
		{
			name:   "exactly at the clock is inclusive",
			before: time.Date(2025, 3, 14, 6, 50, 0, 0, time.UTC),
			want:   time.Date(2025, 3, 14, 6, 50, 0, 0, time.UTC),
		},
		{
			name:   "before the clock goes to previous day",
			before: time.Date(2025, 3, 14, 5, 0, 0, 0, time.UTC),
			want:   time.Date(2025, 3, 13, 6, 50, 0, 0, time.UTC),
		},
		{
			name:   "crosses year boundary",
			before: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			want:   time.Date(2024, 12, 31, 6, 50, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clock.Prev(tt.before))
		})
	}
}

func TestUTCMidnight(t *testing.T) {
	got := UTCMidnight(time.Date(2025, 3, 14, 17, 45, 12, 500, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)

	// Non-UTC inputs are converted before truncation.
	offset := time.FixedZone("plus5", 5*60*60)
	got = UTCMidnight(time.Date(2025, 3, 14, 2, 0, 0, 0, offset))
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), got)
}
