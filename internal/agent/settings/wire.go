package settings

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

// wireSnapshot is the JSON document served by the control plane.
// Absent fields keep the local value.
type wireSnapshot struct {
	AgentEnabled             *bool         `json:"agentEnabled,omitempty"`
	ProfilerEnabled          *bool         `json:"profilerEnabled,omitempty"`
	ProfilingDurationSeconds *float64      `json:"profilingDurationSeconds,omitempty"`
	CPUTrigger               *wireTrigger  `json:"cpuTrigger,omitempty"`
	MemoryTrigger            *wireTrigger  `json:"memoryTrigger,omitempty"`
	Sampling                 *wireSampling `json:"sampling,omitempty"`
}

type wireTrigger struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	CooldownSeconds *float64 `json:"cooldownSeconds,omitempty"`
}

type wireSampling struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	Overhead        *float64 `json:"overhead,omitempty"`
	CooldownSeconds *float64 `json:"cooldownSeconds,omitempty"`
}

// Decode parses a control plane document and overlays it on base.
func Decode(data []byte, base Snapshot) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	snap := base
	setBool(&snap.AgentEnabled, w.AgentEnabled)
	setBool(&snap.ProfilerEnabled, w.ProfilerEnabled)
	if err := setSeconds(&snap.ProfilingDuration, w.ProfilingDurationSeconds, "profilingDurationSeconds",
		constants.MinRemoteProfilingDuration, constants.MaxProfilingDuration); err != nil {
		return Snapshot{}, err
	}
	if err := w.CPUTrigger.apply(&snap.CPU, "cpuTrigger"); err != nil {
		return Snapshot{}, err
	}
	if err := w.MemoryTrigger.apply(&snap.Memory, "memoryTrigger"); err != nil {
		return Snapshot{}, err
	}
	if s := w.Sampling; s != nil {
		setBool(&snap.Sampling.Enabled, s.Enabled)
		if s.Overhead != nil {
			if *s.Overhead < 0 || *s.Overhead > 1 {
				return Snapshot{}, fmt.Errorf("sampling.overhead out of range: %v", *s.Overhead)
			}
			snap.Sampling.Overhead = *s.Overhead
		}
		if err := setSeconds(&snap.Sampling.Cooldown, s.CooldownSeconds, "sampling.cooldownSeconds", 0, constants.MaxCooldown); err != nil {
			return Snapshot{}, err
		}
	}

	return snap, nil
}

// Encode renders a snapshot in the control plane format.
func Encode(s Snapshot) ([]byte, error) {
	w := wireSnapshot{
		AgentEnabled:             &s.AgentEnabled,
		ProfilerEnabled:          &s.ProfilerEnabled,
		ProfilingDurationSeconds: seconds(s.ProfilingDuration),
		CPUTrigger:               encodeTrigger(s.CPU),
		MemoryTrigger:            encodeTrigger(s.Memory),
		Sampling: &wireSampling{
			Enabled:         &s.Sampling.Enabled,
			Overhead:        &s.Sampling.Overhead,
			CooldownSeconds: seconds(s.Sampling.Cooldown),
		},
	}
	return json.Marshal(w)
}

func (w *wireTrigger) apply(t *Trigger, name string) error {
	if w == nil {
		return nil
	}
	setBool(&t.Enabled, w.Enabled)
	if w.Threshold != nil {
		if *w.Threshold <= 0 || *w.Threshold > 100 {
			return fmt.Errorf("%s.threshold out of range: %v", name, *w.Threshold)
		}
		t.Threshold = *w.Threshold
	}
	return setSeconds(&t.Cooldown, w.CooldownSeconds, name+".cooldownSeconds", 0, constants.MaxCooldown)
}

func encodeTrigger(t Trigger) *wireTrigger {
	return &wireTrigger{
		Enabled:         &t.Enabled,
		Threshold:       &t.Threshold,
		CooldownSeconds: seconds(t.Cooldown),
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// setSeconds converts src seconds into dst. Values outside [lo, hi] are
// rejected before conversion so that huge inputs cannot overflow.
func setSeconds(dst *time.Duration, src *float64, name string, lo, hi time.Duration) error {
	if src == nil {
		return nil
	}
	if !(*src >= lo.Seconds() && *src <= hi.Seconds()) {
		return fmt.Errorf("%s out of range [%s, %s]: %v", name, lo, hi, *src)
	}
	*dst = time.Duration(*src * float64(time.Second))
	return nil
}

func seconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}
