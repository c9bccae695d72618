package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bobby-s-dev/weatherbot/internal/metrics"
	"github.com/bobby-s-dev/weatherbot/internal/models"
	"go.uber.org/zap"
)

const (
	PolicyWindowed = "windowed"
	PolicySimple   = "simple"

	SourceLive  = metrics.SourceLive
	SourceCache = metrics.SourceCache

	NoForecastText = "No forecast data available."

	labelLayout = "3 PM"
)

type ForecastOptions struct {
	Policy    string
	Horizon   time.Duration
	Spacing   time.Duration
	Tolerance time.Duration
	Slots     int
	Location  *time.Location
}

// SourcedPayload tags a raw forecast with where it came from. When several
// payloads carry a period at the same instant, the one listed first wins.
type SourcedPayload struct {
	Source  string
	Payload models.ForecastPayload
}

type ForecastBuilder struct {
	opts   ForecastOptions
	logger *zap.Logger
}

type candidate struct {
	period models.ForecastPeriod
	source string
}

func NewForecastBuilder(opts ForecastOptions, logger *zap.Logger) *ForecastBuilder {
	if opts.Policy == "" {
		opts.Policy = PolicyWindowed
	}
	if opts.Horizon < 0 {
		opts.Horizon = 0
	}
	if opts.Spacing < time.Hour {
		opts.Spacing = 3 * time.Hour
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = time.Hour
	}
	if opts.Slots <= 0 {
		opts.Slots = 4
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &ForecastBuilder{
		opts:   opts,
		logger: logger.With(zap.String("component", "forecast_builder")),
	}
}

// Build selects up to Slots summary lines after ref from the given payloads.
// An empty result means nothing qualified.
func (b *ForecastBuilder) Build(payloads []SourcedPayload, ref time.Time) []models.ForecastSummaryLine {
	candidates := b.merge(payloads)
	if len(candidates) == 0 {
		return nil
	}

	if b.opts.Policy == PolicySimple {
		return b.selectSimple(candidates, ref)
	}
	return b.selectWindowed(candidates, ref)
}

// Targets returns the slot instants windowed selection aims for: the first
// local boundary at or after ref+horizon that is a multiple of the spacing,
// then every spacing after it.
func (b *ForecastBuilder) Targets(ref time.Time) []time.Time {
	earliest := ref.In(b.opts.Location).Add(b.opts.Horizon)

	stepHours := int(b.opts.Spacing / time.Hour)
	hour := earliest.Hour() - earliest.Hour()%stepHours
	start := time.Date(earliest.Year(), earliest.Month(), earliest.Day(), hour, 0, 0, 0, b.opts.Location)
	for start.Before(earliest) {
		start = start.Add(b.opts.Spacing)
	}

	targets := make([]time.Time, b.opts.Slots)
	for i := range targets {
		targets[i] = start.Add(time.Duration(i) * b.opts.Spacing)
	}
	return targets
}

// merge unions the periods of all payloads, keeping the first period seen at
// each exact start instant, and returns them in chronological order.
func (b *ForecastBuilder) merge(payloads []SourcedPayload) []candidate {
	seen := make(map[int64]bool)
	var merged []candidate

	for _, p := range payloads {
		if len(p.Payload) == 0 {
			continue
		}
		periods, err := p.Payload.Periods()
		if err != nil {
			b.logger.Warn("Skipping unreadable forecast payload",
				zap.String("source", p.Source),
				zap.Error(err))
			continue
		}
		for _, period := range periods {
			key := period.StartTime.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, candidate{period: period, source: p.Source})
		}
	}

	sortCandidates(merged)
	return merged
}

func (b *ForecastBuilder) selectSimple(candidates []candidate, ref time.Time) []models.ForecastSummaryLine {
	threshold := ref.Add(b.opts.Horizon)
	lines := make([]models.ForecastSummaryLine, 0, b.opts.Slots)

	for _, c := range candidates {
		if c.period.StartTime.Before(threshold) {
			continue
		}
		lines = append(lines, b.line(c, c.period.StartTime))
		if len(lines) == b.opts.Slots {
			break
		}
	}

	return lines
}

func (b *ForecastBuilder) selectWindowed(candidates []candidate, ref time.Time) []models.ForecastSummaryLine {
	lines := make([]models.ForecastSummaryLine, 0, b.opts.Slots)
	var lastPicked time.Time

	for _, target := range b.Targets(ref) {
		best := -1
		var bestDist time.Duration

		for i, c := range candidates {
			if !lastPicked.IsZero() && !c.period.StartTime.After(lastPicked) {
				continue
			}
			dist := c.period.StartTime.Sub(target)
			if dist < 0 {
				dist = -dist
			}
			if dist > b.opts.Tolerance {
				continue
			}
			if best < 0 || dist < bestDist {
				best = i
				bestDist = dist
			}
		}

		if best < 0 {
			b.logger.Debug("No forecast period near slot", zap.Time("target", target))
			continue
		}

		lastPicked = candidates[best].period.StartTime
		lines = append(lines, b.line(candidates[best], target))
	}

	return lines
}

func (b *ForecastBuilder) line(c candidate, at time.Time) models.ForecastSummaryLine {
	local := at.In(b.opts.Location)
	return models.ForecastSummaryLine{
		Label:       local.Format(labelLayout),
		Time:        local,
		Temperature: c.period.Temperature,
		Unit:        c.period.TemperatureUnit,
		Description: c.period.ShortForecast,
		Source:      c.source,
	}
}

// RenderForecast joins summary lines for a post.
func RenderForecast(lines []models.ForecastSummaryLine) string {
	if len(lines) == 0 {
		return NoForecastText
	}

	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = l.String()
	}
	return strings.Join(rendered, "\n")
}

// forecastSource summarises where the lines of a summary came from.
func forecastSource(lines []models.ForecastSummaryLine) string {
	if len(lines) == 0 {
		return metrics.SourceNone
	}

	sources := make(map[string]bool)
	for _, l := range lines {
		sources[l.Source] = true
	}
	if len(sources) > 1 {
		return metrics.SourceMerged
	}
	return lines[0].Source
}

func sortCandidates(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].period.StartTime.Before(c[j].period.StartTime)
	})
}

func (o ForecastOptions) String() string {
	return fmt.Sprintf("%s horizon=%s spacing=%s tolerance=%s slots=%d tz=%s",
		o.Policy, o.Horizon, o.Spacing, o.Tolerance, o.Slots, o.Location)
}
