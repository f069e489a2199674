package diff

import "regexp"

// isSameXMLIgnoringStats reports whether two PAM sidecar XML documents are
// identical, or differ only in that one of them has a GDAL-computed
// <Histograms> and/or <Metadata> block that the other lacks. GDAL inserts
// these blocks when statistics are (re)computed (e.g. `gdalinfo -stats`)
// without the tile's pixel data changing, and that alone should not read as
// a dataset change.
func isSameXMLIgnoringStats(lhs, rhs string) bool {
	if lhs == rhs {
		return true
	}
	return lhsIsRhsMinusStats(lhs, rhs) || lhsIsRhsMinusStats(rhs, lhs)
}

var anyTag = `(<[^<>]+>)`
var statsBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(anyTag + `\s*<Histograms>(?s:.*)</Histograms>\s*` + anyTag),
	regexp.MustCompile(anyTag + `\s*<Metadata>(?s:.*)</Metadata>\s*` + anyTag),
}

// lhsIsRhsMinusStats checks whether lhs equals rhs with its stats block(s)
// removed, trying each of the recognised stats-block shapes against rhs in
// turn.
func lhsIsRhsMinusStats(lhs, rhs string) bool {
	for _, pattern := range statsBlockPatterns {
		loc := pattern.FindStringSubmatchIndex(rhs)
		if loc == nil {
			continue
		}
		preTag := rhs[loc[2]:loc[3]]
		postTag := rhs[loc[4]:loc[5]]

		collapsed := regexp.MustCompile(regexp.QuoteMeta(preTag) + `\s*` + regexp.QuoteMeta(postTag))
		lhsLoc := collapsed.FindStringIndex(lhs)
		if lhsLoc == nil {
			return false
		}

		replacement := preTag + postTag
		lhsNext := lhs[:lhsLoc[0]] + replacement + lhs[lhsLoc[1]:]
		rhsNext := rhs[:loc[0]] + replacement + rhs[loc[1]:]
		if lhsNext == rhsNext {
			return true
		}
		lhs, rhs = lhsNext, rhsNext
	}
	return false
}
