// Package fingerprint implements C1: a pure Plan -> Fingerprint function.
//
// Two plans that differ only in credentials, human-readable name/
// description, submission timestamp, or sample_size within the same
// bucket must hash identically.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/llmrank/internal/domain/plan"
)

// defaultLadder is the bucket ladder used when the caller does not
// configure one.
var defaultLadder = []int{10, 25, 50, 100, 250, 500, 1000}

// Bucketer maps a requested sample size to the smallest configured
// bucket greater than or equal to it. Sizes above the top bucket map to
// themselves, so a huge request never silently collapses into the
// largest configured bucket.
type Bucketer struct {
	ladder []int
}

// NewBucketer builds a Bucketer from a ladder of bucket sizes. An empty
// ladder falls back to the default ladder; any ladder is sorted.
func NewBucketer(ladder []int) *Bucketer {
	if len(ladder) == 0 {
		ladder = append([]int(nil), defaultLadder...)
	} else {
		ladder = append([]int(nil), ladder...)
	}
	sort.Ints(ladder)
	return &Bucketer{ladder: ladder}
}

// Bucket returns the smallest configured bucket >= n.
func (b *Bucketer) Bucket(n int) int {
	for _, step := range b.ladder {
		if n <= step {
			return step
		}
	}
	if len(b.ladder) == 0 {
		return n
	}
	return n
}

// Fingerprinter derives a stable, content-addressed cache key from a
// Plan's canonicalized form.
type Fingerprinter struct {
	bucketer *Bucketer
}

// New builds a Fingerprinter using the given bucket ladder (nil/empty
// uses the default ladder).
func New(ladder []int) *Fingerprinter {
	return &Fingerprinter{bucketer: NewBucketer(ladder)}
}

// Fingerprint computes the plan's fingerprint: a hex-encoded SHA-256
// digest of the plan's canonical form. The canonical form excludes
// credentials, human description/name, submission timestamp, and any
// UI-only field.
func (f *Fingerprinter) Fingerprint(p *plan.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "schema=%s\n", strings.ToLower(strings.TrimSpace(p.SchemaVersion)))
	fmt.Fprintf(&b, "problem_type=%s\n", p.Profile.ProblemType)
	fmt.Fprintf(&b, "target_type=%s\n", p.Profile.TargetType)
	fmt.Fprintf(&b, "task_type=%s\n", p.Profile.TaskType)
	fmt.Fprintf(&b, "external_tool_usage=%t\n", p.Profile.ExternalToolUsage)
	fmt.Fprintf(&b, "language=%s\n", strings.ToLower(strings.TrimSpace(p.Profile.Language)))
	fmt.Fprintf(&b, "sample_size_bucket=%s\n", strconv.Itoa(f.bucketer.Bucket(p.Profile.SampleSize)))
	fmt.Fprintf(&b, "scoring_method=%s\n", strings.ToLower(strings.TrimSpace(p.Directives.ScoringMethod)))

	subjects := p.SortedSubjectTypes()
	fmt.Fprintf(&b, "subjects=%s\n", strings.Join(subjects, ","))

	models := p.SortedModels()
	modelParts := make([]string, len(models))
	for i, m := range models {
		modelParts[i] = fmt.Sprintf("%s@%s", strings.ToLower(m.Name), strings.ToLower(m.Endpoint))
	}
	fmt.Fprintf(&b, "models=%s\n", strings.Join(modelParts, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// BucketFor exposes the bucket a given sample size would map to under
// this Fingerprinter's ladder.
func (f *Fingerprinter) BucketFor(n int) int {
	return f.bucketer.Bucket(n)
}
