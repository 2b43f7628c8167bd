// Trackguard - Covert Tracker Detection Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/trackguard/internal/geo"
	"github.com/tomtom215/trackguard/internal/logging"
	"github.com/tomtom215/trackguard/internal/metrics"
)

// detectionNamespace seeds the name-based (v5) detection ids.
var detectionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/tomtom215/trackguard/detection"))

// Exclusion reasons, used as metric labels and in debug logs.
const (
	excludedWhitelisted    = "whitelisted"
	excludedBelowThreshold = "below_threshold"
	excludedTooClose       = "too_close"
	excludedLowScore       = "low_score"
	excludedLinked         = "linked"
)

// AlgorithmConfig configures the orchestrator.
type AlgorithmConfig struct {
	// Workers bounds how many devices are scored concurrently.
	Workers int `json:"workers"`

	// DisableShadows skips shadow-profile analysis in full runs.
	DisableShadows bool `json:"disable_shadows"`
}

// DefaultAlgorithmConfig uses one worker per CPU.
func DefaultAlgorithmConfig() AlgorithmConfig {
	return AlgorithmConfig{Workers: runtime.NumCPU()}
}

// Algorithm runs a full detection pass over a read-only store snapshot:
// candidate selection, whitelist and distance filters, threat scoring,
// shadow-profile analysis and ranking. It keeps no state between runs.
type Algorithm struct {
	devices   DeviceStore
	locations LocationStore
	paths     PathStore
	settings  SettingsProvider

	scorer  ThreatScorer
	shadows *ShadowAnalyzer
	linker  *LinkDecider

	config AlgorithmConfig
	now    func() time.Time
	mu     sync.RWMutex
}

// NewAlgorithm wires an algorithm over store. scorer and shadows may be nil
// to use the default implementations.
func NewAlgorithm(store Store, settings SettingsProvider, scorer ThreatScorer, shadows *ShadowAnalyzer) *Algorithm {
	if scorer == nil {
		scorer = NewThreatScoreCalculator(nil, nil)
	}
	if shadows == nil {
		shadows = NewShadowAnalyzer(store, nil)
	}
	return &Algorithm{
		devices:   store,
		locations: store,
		paths:     store,
		settings:  settings,
		scorer:    scorer,
		shadows:   shadows,
		linker:    NewLinkDecider(DefaultLinkConfig()),
		config:    DefaultAlgorithmConfig(),
		now:       time.Now,
	}
}

// Configure replaces the configuration.
func (a *Algorithm) Configure(cfg AlgorithmConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config = cfg
}

// SetLinkDecider replaces the policy used to merge fingerprint-matched devices.
func (a *Algorithm) SetLinkDecider(l *LinkDecider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linker = l
}

// SetClock replaces the time source. Used by tests.
func (a *Algorithm) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// runState is what every device evaluation in one run shares. It is built
// before fan-out and only read afterwards.
type runState struct {
	settings  Settings
	whitelist map[int64]struct{}
	at        time.Time
	places    []Location
	path      []UserPath
	linker    *LinkDecider

	disableShadows bool
}

// RunDetection performs one full pass and returns results sorted by threat
// score, highest first. If ctx is cancelled mid-run the results gathered so
// far are returned together with ctx.Err().
func (a *Algorithm) RunDetection(ctx context.Context) ([]DetectionResult, error) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()

	results, candidates, err := a.runDetection(ctx)

	status := "success"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	metrics.RecordDetectionRun(status, time.Since(start), candidates)

	log := logging.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("status", status).Int("results", len(results)).Msg("detection run failed")
		return results, err
	}
	log.Info().
		Int("candidates", candidates).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("detection run complete")
	return results, nil
}

func (a *Algorithm) runDetection(ctx context.Context) ([]DetectionResult, int, error) {
	st, err := a.prepare(ctx)
	if err != nil {
		return nil, 0, err
	}

	candidates, err := a.devices.CandidateDevices(ctx, st.settings.AlertThreshold)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get candidate devices: %w", err)
	}
	devices := a.selectCandidates(ctx, candidates, st)

	if len(devices) > 0 {
		if err := a.loadCarrierSnapshot(ctx, st); err != nil {
			return nil, len(candidates), err
		}
	}

	found, err := a.scoreDevices(ctx, st, devices)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rank(found), len(candidates), ctxErr
	}
	if err != nil {
		return nil, len(candidates), err
	}

	var shadowResults []DetectionResult
	if !st.disableShadows {
		shadowResults, err = a.shadowDetections(ctx, st)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rank(found), len(candidates), ctxErr
	}
	if err != nil {
		return nil, len(candidates), err
	}

	merged := mergeResults(found, shadowResults)
	for _, r := range merged {
		metrics.RecordDetectionResult(string(r.Source), r.ThreatScore)
	}
	return rank(merged), len(candidates), nil
}

// RunDetectionForDevice runs the device pipeline for one device. It returns
// nil when the device is whitelisted, unknown, or filtered out.
func (a *Algorithm) RunDetectionForDevice(ctx context.Context, id int64) (*DetectionResult, error) {
	st, err := a.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := st.whitelist[id]; ok {
		metrics.RecordExclusion(excludedWhitelisted)
		return nil, nil
	}

	device, err := a.devices.Device(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get device %d: %w", id, err)
	}
	if device == nil {
		return nil, nil
	}

	if err := a.loadCarrierSnapshot(ctx, st); err != nil {
		return nil, err
	}
	r, err := a.evaluateDevice(ctx, st, device)
	if err != nil {
		return nil, err
	}
	if r != nil {
		metrics.RecordDetectionResult(string(r.Source), r.ThreatScore)
	}
	return r, nil
}

// FindSuspiciousShadows runs only the shadow analysis with the current
// settings and whitelist.
func (a *Algorithm) FindSuspiciousShadows(ctx context.Context) ([]ShadowAnalysisResult, error) {
	st, err := a.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return a.shadows.FindSuspiciousShadows(ctx, st.settings.AlertThreshold, st.whitelist)
}

func (a *Algorithm) prepare(ctx context.Context) (*runState, error) {
	settings, err := a.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	ids, err := a.devices.WhitelistedDeviceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	whitelist := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		whitelist[id] = struct{}{}
	}

	a.mu.RLock()
	now, linker, disableShadows := a.now, a.linker, a.config.DisableShadows
	a.mu.RUnlock()

	return &runState{
		settings:       settings,
		whitelist:      whitelist,
		at:             now(),
		linker:         linker,
		disableShadows: disableShadows,
	}, nil
}

// selectCandidates drops whitelisted devices and devices strongly linked to
// another candidate, which are scored as part of their primary. Candidates
// sharing a payload fingerprint fold into the lowest id among them.
func (a *Algorithm) selectCandidates(ctx context.Context, candidates []ScannedDevice, st *runState) []ScannedDevice {
	ids := make(map[int64]struct{}, len(candidates))
	for _, d := range candidates {
		ids[d.ID] = struct{}{}
	}

	out := make([]ScannedDevice, 0, len(candidates))
	for _, d := range candidates {
		if _, ok := st.whitelist[d.ID]; ok {
			metrics.RecordExclusion(excludedWhitelisted)
			continue
		}
		if d.LinkedDeviceID != nil && d.LinkStrength == LinkStrong {
			if _, primary := ids[*d.LinkedDeviceID]; primary {
				if _, wl := st.whitelist[*d.LinkedDeviceID]; !wl {
					metrics.RecordExclusion(excludedLinked)
					continue
				}
			}
		}
		out = append(out, d)
	}

	if st.linker == nil {
		logging.Ctx(ctx).Debug().Int("candidates", len(candidates)).Int("selected", len(out)).Msg("candidates selected")
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	primaries := make(map[string]ScannedDevice)
	kept := make([]ScannedDevice, 0, len(out))
	for i := range out {
		d := &out[i]
		if d.PayloadFingerprint != "" {
			if p, ok := primaries[d.PayloadFingerprint]; ok {
				if st.linker.DecideLink(d, &p).Strength() == LinkStrong {
					metrics.RecordExclusion(excludedLinked)
					continue
				}
			} else {
				primaries[d.PayloadFingerprint] = *d
			}
		}
		kept = append(kept, *d)
	}
	logging.Ctx(ctx).Debug().Int("candidates", len(candidates)).Int("selected", len(kept)).Msg("candidates selected")
	return kept
}

func (a *Algorithm) loadCarrierSnapshot(ctx context.Context, st *runState) error {
	places, err := a.locations.AllLocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get carrier locations: %w", err)
	}
	var since time.Time
	if st.settings.PathLookback > 0 {
		since = st.at.Add(-st.settings.PathLookback)
	}
	path, err := a.paths.PathSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to get carrier path: %w", err)
	}
	st.places, st.path = places, path
	return nil
}

// scoreDevices evaluates devices concurrently, bounded by Workers. On
// cancellation it stops scheduling new devices and returns what finished.
func (a *Algorithm) scoreDevices(ctx context.Context, st *runState, devices []ScannedDevice) ([]DetectionResult, error) {
	a.mu.RLock()
	workers := a.config.Workers
	a.mu.RUnlock()
	if workers <= 0 {
		workers = 1
	}

	slots := make([]*DetectionResult, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range devices {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r, err := a.evaluateDevice(gctx, st, &devices[i])
			if err != nil {
				return fmt.Errorf("device %d: %w", devices[i].ID, err)
			}
			slots[i] = r
			return nil
		})
	}
	err := g.Wait()

	out := make([]DetectionResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, err
}

// evaluateDevice runs the per-device filters and scoring. It returns nil
// for devices that do not qualify.
func (a *Algorithm) evaluateDevice(ctx context.Context, st *runState, device *ScannedDevice) (*DetectionResult, error) {
	log := logging.Ctx(ctx).With().Int64("device_id", device.ID).Logger()

	group, err := a.linkedGroup(ctx, st, device)
	if err != nil {
		return nil, err
	}

	all, err := a.locations.LocationsForDevices(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to get locations: %w", err)
	}
	locations := distinctUsable(all)
	if len(locations) < st.settings.AlertThreshold {
		metrics.RecordExclusion(excludedBelowThreshold)
		log.Debug().Int("locations", len(locations)).Msg("device excluded: below location threshold")
		return nil, nil
	}

	distances := geo.PairwiseDistances(locations)
	maxDist, avgDist := geo.DistanceStats(distances)
	if maxDist < st.settings.MinDetectionDistanceMeters {
		metrics.RecordExclusion(excludedTooClose)
		log.Debug().Float64("max_distance", maxDist).Msg("device excluded: locations too close together")
		return nil, nil
	}

	records, err := a.locations.RecordsForDevices(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to get sightings: %w", err)
	}

	breakdown := a.scorer.CalculateEnhancedWithBreakdown(device, locations, distances, MovementInput{
		Records: records,
		Path:    st.path,
		Places:  st.places,
	})
	score := clamp01(breakdown.Total)
	if score < st.settings.MinThreatScore {
		metrics.RecordExclusion(excludedLowScore)
		log.Debug().Float64("score", score).Msg("device excluded: threat score below minimum")
		return nil, nil
	}

	return &DetectionResult{
		ID:          detectionID(SourceDevice, device.ID, "", st.at),
		Device:      *device,
		Locations:   locations,
		MaxDistance: maxDist,
		AvgDistance: avgDist,
		ThreatScore: score,
		Breakdown:   &breakdown,
		Reason:      deviceReason(device, len(locations), maxDist, len(group)),
		Timestamp:   st.at,
		Source:      SourceDevice,
	}, nil
}

// linkedGroup returns the device plus every non-whitelisted device strongly
// linked to it, either explicitly or by payload fingerprint.
func (a *Algorithm) linkedGroup(ctx context.Context, st *runState, device *ScannedDevice) ([]int64, error) {
	group := []int64{device.ID}
	seen := map[int64]struct{}{device.ID: {}}
	add := func(d *ScannedDevice) {
		if _, ok := seen[d.ID]; ok {
			return
		}
		if _, ok := st.whitelist[d.ID]; ok {
			return
		}
		seen[d.ID] = struct{}{}
		group = append(group, d.ID)
	}

	linked, err := a.devices.DevicesLinkedTo(ctx, device.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get linked devices: %w", err)
	}
	for i := range linked {
		if linked[i].LinkStrength == LinkStrong {
			add(&linked[i])
		}
	}

	if device.PayloadFingerprint != "" && st.linker != nil {
		same, err := a.devices.DevicesByFingerprint(ctx, device.PayloadFingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to get fingerprint matches: %w", err)
		}
		for i := range same {
			if st.linker.DecideLink(&same[i], device).Strength() == LinkStrong {
				add(&same[i])
			}
		}
	}
	return group, nil
}

// shadowDetections converts qualifying shadow findings into results. The
// same minimum-distance guard as for devices applies.
func (a *Algorithm) shadowDetections(ctx context.Context, st *runState) ([]DetectionResult, error) {
	findings, err := a.shadows.FindSuspiciousShadows(ctx, st.settings.AlertThreshold, st.whitelist)
	if err != nil {
		return nil, err
	}

	var out []DetectionResult
	for i := range findings {
		f := &findings[i]
		if f.CombinedScore < st.settings.MinShadowScore {
			continue
		}

		ids := make([]int64, 0, len(f.DeviceCountsByLocation))
		for id := range f.DeviceCountsByLocation {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		locs, err := a.locations.LocationsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to get locations for shadow key %q: %w", f.ShadowKey, err)
		}
		locs = distinctUsable(locs)
		maxDist, avgDist := geo.DistanceStats(geo.PairwiseDistances(locs))
		if maxDist < st.settings.MinDetectionDistanceMeters {
			metrics.RecordExclusion(excludedTooClose)
			logging.Ctx(ctx).Debug().Str("shadow_key", f.ShadowKey).Float64("max_distance", maxDist).Msg("shadow excluded: locations too close together")
			continue
		}

		out = append(out, DetectionResult{
			ID:          detectionID(SourceShadow, f.RepresentativeDevice.ID, f.ShadowKey, st.at),
			Device:      f.RepresentativeDevice,
			Locations:   locs,
			MaxDistance: maxDist,
			AvgDistance: avgDist,
			ThreatScore: f.CombinedScore,
			Reason:      shadowReason(f),
			Timestamp:   st.at,
			Source:      SourceShadow,
			ShadowKey:   f.ShadowKey,
		})
	}
	return out, nil
}

// mergeResults combines device and shadow results, keeping one result per
// device: the one with the higher score, device results winning ties.
func mergeResults(device, shadow []DetectionResult) []DetectionResult {
	out := make([]DetectionResult, 0, len(device)+len(shadow))
	index := make(map[int64]int, len(device)+len(shadow))
	for _, r := range append(append([]DetectionResult{}, device...), shadow...) {
		if i, ok := index[r.Device.ID]; ok {
			if r.ThreatScore > out[i].ThreatScore {
				out[i] = r
			}
			continue
		}
		index[r.Device.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func rank(results []DetectionResult) []DetectionResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ThreatScore == results[j].ThreatScore {
			return results[i].Device.ID < results[j].Device.ID
		}
		return results[i].ThreatScore > results[j].ThreatScore
	})
	return results
}

// distinctUsable drops duplicate place ids and places without usable coordinates.
func distinctUsable(locations []Location) []Location {
	seen := make(map[int64]struct{}, len(locations))
	out := make([]Location, 0, len(locations))
	for _, l := range locations {
		if _, dup := seen[l.ID]; dup || !usableCoordinates(l) {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func detectionID(source Source, deviceID int64, shadowKey string, at time.Time) string {
	name := fmt.Sprintf("%s|%d|%s|%d", source, deviceID, shadowKey, at.UnixNano())
	return uuid.NewSHA1(detectionNamespace, []byte(name)).String()
}

func deviceReason(d *ScannedDevice, locations int, maxDist float64, groupSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s seen at %d locations up to %.1f km apart", d.DisplayName(), locations, maxDist/1000)
	if groupSize > 1 {
		fmt.Fprintf(&b, " across %d linked addresses", groupSize)
	}
	return b.String()
}

func shadowReason(f *ShadowAnalysisResult) string {
	reason := fmt.Sprintf("device profile %s seen at %d locations across %d addresses",
		f.ShadowKey, f.LocationCount, f.DeviceCount)
	if f.Rotation != nil && f.Rotation.IsRegular {
		reason += fmt.Sprintf(", rotating every %s", f.Rotation.AverageInterval.Round(time.Second))
	}
	return reason
}

// IsStoreUnavailable reports whether err came from a rejected store call.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
