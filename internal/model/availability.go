package model

import (
	"fmt"
	"sort"
	"time"
)

// MinutesPerDay верхняя граница для времени внутри дня
const MinutesPerDay = 24 * 60

// TimeRange полуинтервал [Start, End) в минутах от полуночи
type TimeRange struct {
	Start int `json:"start_time"`
	End   int `json:"end_time"`
}

// Overlaps проверяет пересечение двух полуинтервалов
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Contains проверяет что o целиком лежит внутри r
func (r TimeRange) Contains(o TimeRange) bool {
	return r.Start <= o.Start && o.End <= r.End
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s-%s", FormatMinutes(r.Start), FormatMinutes(r.End))
}

// FormatMinutes форматирует минуты от полуночи как HH:MM
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// WeekSnapshot недельное расписание: день недели -> отсортированные интервалы.
// Ключ - time.Weekday (0 = Sunday).
type WeekSnapshot map[time.Weekday][]TimeRange

// Clone делает глубокую копию
func (w WeekSnapshot) Clone() WeekSnapshot {
	out := make(WeekSnapshot, len(w))
	for day, ranges := range w {
		if len(ranges) == 0 {
			continue
		}
		out[day] = append([]TimeRange(nil), ranges...)
	}
	return out
}

// IsEmpty true если ни в один день нет интервалов
func (w WeekSnapshot) IsEmpty() bool {
	for _, ranges := range w {
		if len(ranges) > 0 {
			return false
		}
	}
	return true
}

// Normalize сортирует интервалы каждого дня и проверяет инварианты:
// границы внутри суток, start < end, отсутствие пересечений.
func (w WeekSnapshot) Normalize() (WeekSnapshot, error) {
	out := make(WeekSnapshot, len(w))
	for day, ranges := range w {
		if day < time.Sunday || day > time.Saturday {
			return nil, fmt.Errorf("invalid weekday %d", day)
		}
		if len(ranges) == 0 {
			continue
		}

		sorted := append([]TimeRange(nil), ranges...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

		for i, r := range sorted {
			if r.Start < 0 || r.End > MinutesPerDay {
				return nil, fmt.Errorf("%s: range %s is outside of the day", day, r)
			}
			if r.Start >= r.End {
				return nil, fmt.Errorf("%s: range %s is empty", day, r)
			}
			if i > 0 && sorted[i-1].Overlaps(r) {
				return nil, fmt.Errorf("%s: ranges %s and %s overlap", day, sorted[i-1], r)
			}
		}
		out[day] = sorted
	}
	return out, nil
}

// ChangedDays возвращает дни, в которых расписание отличается
func (w WeekSnapshot) ChangedDays(other WeekSnapshot) []time.Weekday {
	var days []time.Weekday
	for day := time.Sunday; day <= time.Saturday; day++ {
		if !equalRanges(w[day], other[day]) {
			days = append(days, day)
		}
	}
	return days
}

func equalRanges(a, b []TimeRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TutorAvailability регулярная недельная доступность учителя
type TutorAvailability struct {
	TutorID   int64        `json:"tutor_id"`
	Days      WeekSnapshot `json:"days"`
	UpdatedAt *time.Time   `json:"updated_at"` // nil - расписание ещё не задавалось
}

// RangesFor возвращает интервалы на день недели
func (a *TutorAvailability) RangesFor(day time.Weekday) []TimeRange {
	if a == nil {
		return nil
	}
	return a.Days[day]
}

type AvailabilityAction string

const (
	AvailabilityAdded      AvailabilityAction = "added"
	AvailabilityUpdated    AvailabilityAction = "updated"
	AvailabilityDeleted    AvailabilityAction = "deleted"
	AvailabilityBulkUpdate AvailabilityAction = "bulk_update"
)

// AvailabilityChangeLog неизменяемая запись журнала изменений доступности
type AvailabilityChangeLog struct {
	ID        int64              `json:"id"`
	TutorID   int64              `json:"tutor_id"`
	Action    AvailabilityAction `json:"action"`
	Before    WeekSnapshot       `json:"before"`
	After     WeekSnapshot       `json:"after"`
	ActorID   int64              `json:"actor_id"`
	ActorRole Role               `json:"actor_role"`
	CreatedAt time.Time          `json:"created_at"`
}

// Slot вычисляемое окно для записи, не хранится
type Slot struct {
	Date      time.Time `json:"date"`
	StartTime int       `json:"start_time"`
	EndTime   int       `json:"end_time"`
}
