package prefetch

import "fmt"

// Policy selects which of the rule set actually runs, so a deployment can
// disable the heavier ELF-dependency rule (it shells out to ldd) without
// touching the others.
type Policy int

const (
	PolicyAll Policy = iota
	PolicyMetadataOnly
	PolicyOff
)

var policyNames = map[Policy]string{
	PolicyAll:          "all",
	PolicyMetadataOnly: "metadata-only",
	PolicyOff:          "off",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "unknown"
}

// Set implements pflag.Value.
func (p *Policy) Set(s string) error {
	switch s {
	case "all":
		*p = PolicyAll
	case "metadata-only":
		*p = PolicyMetadataOnly
	case "off":
		*p = PolicyOff
	default:
		return fmt.Errorf("prefetch: unknown policy %q (want all, metadata-only, or off)", s)
	}
	return nil
}

// Type implements pflag.Value.
func (p Policy) Type() string { return "Policy" }

// Apply filters Rules according to p: PolicyAll runs every rule suited to
// the access kind, PolicyMetadataOnly runs the access rules on an access and
// no rule at all on a read, PolicyOff runs none.
func Apply(p Policy, onRead bool) []Rule {
	switch p {
	case PolicyOff:
		return nil
	case PolicyMetadataOnly:
		if onRead {
			return nil
		}
	}
	var out []Rule
	for _, r := range Rules {
		if r.OnRead && !onRead {
			continue
		}
		out = append(out, r)
	}
	return out
}
