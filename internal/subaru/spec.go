package subaru

import (
	"fmt"
	"strconv"
	"strings"
)

// PackageSpec is a fully qualified NEVRA identifier: name, optional epoch,
// version, release and architecture. It unambiguously names one package
// build, e.g. "bash-5.2.26-3.x86_64" or "dnf-1:4.19.2-1.noarch".
type PackageSpec struct {
	Name    string
	Epoch   int
	Version string
	Release string
	Arch    string
}

// String renders the canonical NEVRA form. The epoch is omitted when zero,
// matching how the index stores identifiers.
func (s PackageSpec) String() string {
	if s.Epoch > 0 {
		return fmt.Sprintf("%s-%d:%s-%s.%s", s.Name, s.Epoch, s.Version, s.Release, s.Arch)
	}
	return fmt.Sprintf("%s-%s-%s.%s", s.Name, s.Version, s.Release, s.Arch)
}

// EVR renders the epoch:version-release portion used in listings.
func (s PackageSpec) EVR() string {
	if s.Epoch > 0 {
		return fmt.Sprintf("%d:%s-%s", s.Epoch, s.Version, s.Release)
	}
	return fmt.Sprintf("%s-%s", s.Version, s.Release)
}

// ParseSpec parses a NEVRA string. The architecture is everything after the
// last dot, the release after the last dash, the version after the dash
// before that; the remainder is the name. An epoch may prefix the version as
// "e:".
func ParseSpec(nevra string) (PackageSpec, error) {
	var spec PackageSpec

	dot := strings.LastIndex(nevra, ".")
	if dot < 0 || dot == len(nevra)-1 {
		return spec, fmt.Errorf("invalid package spec %q: missing architecture", nevra)
	}
	spec.Arch = nevra[dot+1:]
	rest := nevra[:dot]

	relDash := strings.LastIndex(rest, "-")
	if relDash <= 0 {
		return spec, fmt.Errorf("invalid package spec %q: missing release", nevra)
	}
	spec.Release = rest[relDash+1:]
	rest = rest[:relDash]

	verDash := strings.LastIndex(rest, "-")
	if verDash <= 0 {
		return spec, fmt.Errorf("invalid package spec %q: missing version", nevra)
	}
	ver := rest[verDash+1:]
	spec.Name = rest[:verDash]

	if colon := strings.Index(ver, ":"); colon >= 0 {
		epoch, err := strconv.Atoi(ver[:colon])
		if err != nil {
			return spec, fmt.Errorf("invalid package spec %q: bad epoch: %w", nevra, err)
		}
		spec.Epoch = epoch
		ver = ver[colon+1:]
	}
	if ver == "" {
		return spec, fmt.Errorf("invalid package spec %q: empty version", nevra)
	}
	spec.Version = ver

	return spec, nil
}

// compareEVR orders two specs by epoch, then version, then release.
// Returns <0, 0 or >0. The name and arch are not considered.
func compareEVR(a, b PackageSpec) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}
	if c := compareVersions(a.Version, b.Version); c != 0 {
		return c
	}
	return compareVersions(a.Release, b.Release)
}

// compareVersions compares dotted version strings segment by segment,
// numerically where both segments are numeric and lexically otherwise.
// Missing segments count as "0".
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}

		// Try numeric compare
		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			continue
		}
		// Fallback string compare
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}
