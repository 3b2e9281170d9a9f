package selector

import (
	"strings"

	"golang.org/x/net/html"
)

// DescribeNode builds an ElementInfo for target within doc, mirroring what
// the in-page picker reports for live elements. doc is needed to count
// per-class document matches for the unique-class check.
func DescribeNode(doc, target *html.Node) ElementInfo {
	info := ElementInfo{
		Tag:        strings.ToLower(target.Data),
		ID:         attrVal(target, "id"),
		Classes:    strings.Fields(attrVal(target, "class")),
		ClassCount: make(map[string]int),
	}

	for _, cls := range info.Classes {
		count := 0
		walk(doc, func(n *html.Node) {
			if hasClass(n, cls) {
				count++
			}
		})
		info.ClassCount[cls] = count
	}

	for n := target; n != nil && n.Type == html.ElementNode; n = n.Parent {
		info.Path = append(info.Path, Segment{
			Tag:       strings.ToLower(n.Data),
			ID:        attrVal(n, "id"),
			NthOfType: nthOfType(n),
		})
	}
	// Path was collected leaf-first; reverse to root-first.
	for i, j := 0, len(info.Path)-1; i < j; i, j = i+1, j-1 {
		info.Path[i], info.Path[j] = info.Path[j], info.Path[i]
	}

	return info
}
