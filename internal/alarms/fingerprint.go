package alarms

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/alarmdeck/alarmdeck/internal/database"
)

// FingerprintStrategy selects which fields participate in the identity key
// and how aggressively they are normalized first.
type FingerprintStrategy string

const (
	// StrategyStrict requires title, host, service and severity to match verbatim
	StrategyStrict FingerprintStrategy = "strict"
	// StrategyNormal matches on normalized title, host and service, with
	// environment folded in as context when present
	StrategyNormal FingerprintStrategy = "normal"
	// StrategyLoose matches on normalized title and service only, merging
	// repeats across hosts
	StrategyLoose FingerprintStrategy = "loose"
)

// ParseStrategy maps a settings string onto a strategy, defaulting to normal
func ParseStrategy(s string) FingerprintStrategy {
	switch FingerprintStrategy(s) {
	case StrategyStrict, StrategyNormal, StrategyLoose:
		return FingerprintStrategy(s)
	default:
		return StrategyNormal
	}
}

// identityTagKeys is the fixed allow-list of tags folded into fingerprints.
// Arbitrary tags are ignored to avoid fingerprint explosion.
var identityTagKeys = []string{
	"alertname", "job", "instance", "cluster", "namespace",
	"pod", "container", "node", "deployment", "service_name",
}

const fingerprintLength = 16

var (
	// volatile fragments stripped from titles under normalization
	timestampRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:?\d{2})?)?`)
	clockTimeRe  = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)
	percentageRe = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
	byteSizeRe   = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(b|kb|mb|gb|tb|kib|mib|gib|tib)\b`)
	durationRe   = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(ms|s|secs?|seconds?|mins?|minutes?|hrs?|hours?|days?)\b`)
	spaceRe      = regexp.MustCompile(`\s+`)

	hostPortRe   = regexp.MustCompile(`:\d+$`)
	serviceVerRe = regexp.MustCompile(`[-_.]v?\d+(\.\d+)*$`)
)

// NormalizeTitle strips timestamps, percentages, sizes and durations so two
// occurrences of the same problem with different readings fingerprint alike
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = timestampRe.ReplaceAllString(t, "")
	t = clockTimeRe.ReplaceAllString(t, "")
	t = percentageRe.ReplaceAllString(t, "")
	t = byteSizeRe.ReplaceAllString(t, "")
	t = durationRe.ReplaceAllString(t, "")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizeHost lowercases, strips the port and the domain suffix, keeping
// only the first hostname label
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = hostPortRe.ReplaceAllString(h, "")
	if idx := strings.IndexByte(h, '.'); idx > 0 {
		h = h[:idx]
	}
	return h
}

// NormalizeService lowercases and strips trailing version suffixes
// (api-v2, worker_3, billing.1.4)
func NormalizeService(service string) string {
	s := strings.ToLower(strings.TrimSpace(service))
	s = serviceVerRe.ReplaceAllString(s, "")
	return s
}

// Fingerprint derives the deterministic identity key of an alarm under the
// given strategy. Identical canonical input always yields an identical
// fingerprint. The generator never fails: any internal panic degrades to a
// coarse source+title hash so dedup keeps working instead of failing ingest.
func Fingerprint(alarm *database.Alarm, strategy FingerprintStrategy, customFields ...string) (fp string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("title", alarm.Title).
				Msg("fingerprint generation panicked, falling back to coarse hash")
			fp = coarseFingerprint(alarm)
		}
	}()

	fields := make(map[string]string)

	switch strategy {
	case StrategyStrict:
		fields["title"] = alarm.Title
		fields["host"] = alarm.Host
		fields["service"] = alarm.Service
		fields["severity"] = string(alarm.Severity)
	case StrategyLoose:
		fields["title"] = NormalizeTitle(alarm.Title)
		fields["service"] = NormalizeService(alarm.Service)
	default: // normal
		fields["title"] = NormalizeTitle(alarm.Title)
		fields["host"] = NormalizeHost(alarm.Host)
		fields["service"] = NormalizeService(alarm.Service)
		if alarm.Environment != "" {
			fields["environment"] = strings.ToLower(alarm.Environment)
		}
	}

	for _, key := range identityTagKeys {
		if v, ok := alarm.Tags[key]; ok && v != "" {
			fields["tag."+key] = v
		}
	}

	for _, key := range customFields {
		if v, ok := alarm.Tags[key]; ok && v != "" {
			fields["custom."+key] = v
		} else if raw, ok := alarm.Metadata[key]; ok {
			fields["custom."+key] = fmt.Sprintf("%v", raw)
		}
	}

	nonEmpty := false
	for _, v := range fields {
		if v != "" {
			nonEmpty = true
			break
		}
	}
	if !nonEmpty {
		return coarseFingerprint(alarm)
	}

	return hashCanonical(fields)
}

// hashCanonical hashes the field map with stable key ordering and truncates
// to a fixed short length. Truncation collisions are acceptable false-merges
// the similarity scorer still catches downstream.
func hashCanonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0x1f})
		h.Write([]byte(fields[k]))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLength]
}

func coarseFingerprint(alarm *database.Alarm) string {
	h := fnv.New64a()
	h.Write([]byte(alarm.Source))
	h.Write([]byte{0x1f})
	h.Write([]byte(alarm.Title))
	return fmt.Sprintf("%016x", h.Sum64())
}
