package search

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Engine is one dark web search engine in the roster. Template must contain
// a single %s placeholder for the URL-encoded query.
type Engine struct {
	Name     string `yaml:"name" json:"name"`
	Template string `yaml:"template" json:"template"`
}

// SearchURL builds the query URL for an encoded query string.
func (e Engine) SearchURL(encodedQuery string) string {
	return strings.Replace(e.Template, "%s", encodedQuery, 1)
}

// parse extracts result anchors from an engine's HTML response. Engines use
// wildly different markup, so extraction is deliberately generic: every
// anchor pointing at an onion host other than the engine's own is a hit.
func (e Engine) parse(body string) []Result {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	own := hostOf(e.Template)
	var out []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if r, ok := resultFromAnchor(n, own); ok {
				out = append(out, r)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func resultFromAnchor(n *html.Node, ownHost string) (Result, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return Result{}, false
	}
	host := hostOf(href)
	if !strings.HasSuffix(host, ".onion") || host == ownHost {
		return Result{}, false
	}

	title := strings.Join(strings.Fields(textOf(n)), " ")
	if title == "" {
		title = href
	}
	return Result{Title: title, Link: href}, true
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// DefaultRoster is the built-in engine list. Onion addresses rotate often;
// deployments should override stale entries via configuration.
func DefaultRoster() []Engine {
	return []Engine{
		{Name: "Ahmia", Template: "http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion/search/?q=%s"},
		{Name: "Torch", Template: "http://torchdeedp3i2jigzjdmfpn5ttjhthh5wbmda2rr3jvqjg5p77c54dqd.onion/search?query=%s"},
		{Name: "Haystak", Template: "http://haystak5njsmn2hqkewecpaxetahtwhsbsa64jom2k22z5afxhnpxfid.onion/?q=%s"},
		{Name: "OnionLand", Template: "http://3bbad7fauom4d6sgppalyqddsqbf5u5p56b5k5uk2zxsy3d6ey2jobad.onion/search?q=%s"},
		{Name: "Tor66", Template: "http://tor66sewebgixwhcqfnp5inzp5x5uohhdy3kvtnyfxc2e5mxiuh34iid.onion/search?q=%s"},
		{Name: "Tordex", Template: "http://tordexu73joywapk2txdr54jed4imqledpcvcuf75qsas2gwdgksvnyd.onion/search?query=%s"},
		{Name: "Excavator", Template: "http://2fd6cemt4gmccflhm6imvdfvli3nf7zn6rfrwpsy7uhxrgbypvwf5fad.onion/search/%s"},
		{Name: "DarkSearch", Template: "http://darkschn4iw2hxvpv2vy2uoxwkvs2padb56t3h4wqztre6upoc5qwgid.onion/search?q=%s"},
		{Name: "Phobos", Template: "http://phobosxilamwcg75xt22id7aywkzol6q6rfl2flipcqoc4e4ahima5id.onion/search?query=%s"},
		{Name: "OnionSearchServer", Template: "http://oss7wrm7xvoub77o.onion/search?q=%s"},
		{Name: "Demon", Template: "http://srcdemonm74icqjvejew6fprssuolyoc2usjdwflevbdpqoetw4x3ead.onion/search?q=%s"},
		{Name: "Kraken", Template: "http://krakenai2gmgwwqyo7bcklv2lzcvhe7cxzzva2xpygyax5f33oqnxpad.onion/search?q=%s"},
		{Name: "Venus", Template: "http://venusoseaqnafjvzfmrcpcq6g47rhd7sa6nmzvaa4bezhhmcb3cfmfad.onion/search?q=%s"},
		{Name: "Submarine", Template: "http://no6m4wzdexe3auiupv2zwif7rm6qwxcyhslkcnzisxgeiw6pvjsgafgd.onion/search.php?term=%s"},
		{Name: "Bobby", Template: "http://bobby64o755x3gsuznts6hf6agxqjcz5bop6hs7ejorekbm7omes34ad.onion/search?q=%s"},
		{Name: "Stealth", Template: "http://stealthiseuapxisogmzdbsaxbigbdhoxfltlmyrjpnoxx4cjcaf36qd.onion/search?q=%s"},
		{Name: "Ourrealm", Template: "http://orealmvxooetglfeguv2vp65a3rig2baq2ljc7jxxs4hsqsrcemkxcad.onion/search?q=%s"},
	}
}
