// Package subagent runs specialized analysis workers concurrently over a
// shared content payload, isolating failures per worker.
package subagent

// Worker kind names. The set is closed: delegation requests naming anything
// else are rejected before any worker runs.
const (
	KindThreatActorProfiler     = "ThreatActorProfiler"
	KindIOCExtractor            = "IOCExtractor"
	KindMalwareAnalyst          = "MalwareAnalyst"
	KindMarketplaceInvestigator = "MarketplaceInvestigator"
)

type profile struct {
	description string
	system      string
}

// kindOrder fixes the enumeration order used everywhere workers are listed.
var kindOrder = []string{
	KindThreatActorProfiler,
	KindIOCExtractor,
	KindMalwareAnalyst,
	KindMarketplaceInvestigator,
}

var profiles = map[string]profile{
	KindThreatActorProfiler: {
		description: "Profiles threat actors, APT groups, cybercriminals",
		system: "You are a threat actor profiling specialist. Given raw dark web content, " +
			"identify the actors involved: aliases, affiliations, TTPs, targeting, history, " +
			"and confidence in each attribution. Report findings as concise markdown.",
	},
	KindIOCExtractor: {
		description: "Extracts IPs, domains, hashes, emails, crypto addresses",
		system: "You are an indicator-of-compromise extraction specialist. Extract every IP " +
			"address, domain, file hash, email address, onion address, and cryptocurrency " +
			"wallet from the content. Group indicators by type and flag likely false positives.",
	},
	KindMalwareAnalyst: {
		description: "Analyzes malware, ransomware, exploits",
		system: "You are a malware analysis specialist. Identify malware families, ransomware " +
			"strains, exploits, and capabilities described in the content, with severity notes " +
			"and any mitigation opportunities.",
	},
	KindMarketplaceInvestigator: {
		description: "Investigates dark web markets and vendors",
		system: "You are a dark web marketplace specialist. Analyze listings, vendors, pricing, " +
			"escrow mechanics, and market reputation signals present in the content.",
	},
}

// Available returns the worker registry as kind -> description. The map is a
// fresh copy each call so callers cannot mutate the registry through it.
func Available() map[string]string {
	out := make(map[string]string, len(profiles))
	for kind, p := range profiles {
		out[kind] = p.description
	}
	return out
}

// Kinds returns the worker kinds in their fixed enumeration order.
func Kinds() []string {
	out := make([]string, len(kindOrder))
	copy(out, kindOrder)
	return out
}
