package lint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var infoContact = Rule{
	Name:        "info-contact",
	Description: "Info object must have \"contact\" object.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		info := mapping(t.tree.get("info"))
		if info == nil || truthy(field(info, "contact")) {
			return nil
		}
		return []Finding{t.finding("Info object must have \"contact\" object.", "info")}
	},
}

var infoDescription = Rule{
	Name:        "info-description",
	Description: "Info \"description\" must be present and non-empty string.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		info := mapping(t.tree.get("info"))
		if info == nil {
			return nil
		}
		desc := field(info, "description")
		switch {
		case desc == nil:
			return []Finding{t.finding("Info \"description\" must be present and non-empty string.", "info")}
		case !truthy(desc):
			return []Finding{t.finding("Info \"description\" must be present and non-empty string.", "info", "description")}
		}
		return nil
	},
}

var infoLicense = Rule{
	Name:        "info-license",
	Description: "Info object must have \"license\" object.",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		info := mapping(t.tree.get("info"))
		if info == nil || truthy(field(info, "license")) {
			return nil
		}
		return []Finding{t.finding("Info object must have \"license\" object.", "info")}
	},
}

var licenseURL = Rule{
	Name:        "license-url",
	Description: "License object must include \"url\".",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		license := mapping(t.tree.get("info", "license"))
		if license == nil || truthy(field(license, "url")) {
			return nil
		}
		return []Finding{t.finding("License object must include \"url\".", "info", "license")}
	},
}

var contactProperties = Rule{
	Name:        "contact-properties",
	Description: "Contact object must have \"name\", \"url\" and \"email\".",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		contact := mapping(t.tree.get("info", "contact"))
		if contact == nil {
			return nil
		}
		var out []Finding
		for _, name := range []string{"name", "url", "email"} {
			if !truthy(field(contact, name)) {
				out = append(out, t.finding(fmt.Sprintf("Contact object must have %q.", name), "info", "contact"))
			}
		}
		return out
	},
}

var openapiTags = Rule{
	Name:        "openapi-tags",
	Description: "OpenAPI object must have non-empty \"tags\" array.",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		tags := t.tree.get("tags")
		if tags == nil {
			return []Finding{t.finding("OpenAPI object must have non-empty \"tags\" array.")}
		}
		if seq := sequence(tags); seq == nil || len(seq.Content) == 0 {
			return []Finding{t.finding("OpenAPI object must have non-empty \"tags\" array.", "tags")}
		}
		return nil
	},
}

var openapiTagsAlphabetical = Rule{
	Name:        "openapi-tags-alphabetical",
	Description: "OpenAPI object must have alphabetical \"tags\".",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		seq := sequence(t.tree.get("tags"))
		if seq == nil {
			return nil
		}
		prev := ""
		for i, tag := range seq.Content {
			name, _ := scalar(field(tag, "name"))
			if i > 0 && strings.ToLower(name) < strings.ToLower(prev) {
				return []Finding{t.finding("OpenAPI object must have alphabetical \"tags\".", "tags")}
			}
			prev = name
		}
		return nil
	},
}

var tagDescription = Rule{
	Name:        "tag-description",
	Description: "Tag object must have \"description\".",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		seq := sequence(t.tree.get("tags"))
		if seq == nil {
			return nil
		}
		var out []Finding
		for i, tag := range seq.Content {
			if mapping(tag) != nil && !truthy(field(tag, "description")) {
				out = append(out, t.finding("Tag object must have \"description\".", "tags", strconv.Itoa(i)))
			}
		}
		return out
	},
}

var oas3APIServers = Rule{
	Name:        "oas3-api-servers",
	Description: "OpenAPI \"servers\" must be present and non-empty array.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		servers := t.tree.get("servers")
		if servers == nil {
			return []Finding{t.finding("OpenAPI \"servers\" must be present and non-empty array.")}
		}
		if seq := sequence(servers); seq == nil || len(seq.Content) == 0 {
			return []Finding{t.finding("OpenAPI \"servers\" must be present and non-empty array.", "servers")}
		}
		return nil
	},
}

var oas3ServerTrailingSlash = Rule{
	Name:        "oas3-server-trailing-slash",
	Description: "Server URL must not have trailing slash.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		return eachServerURL(t, func(url string) bool {
			return url != "/" && strings.HasSuffix(url, "/")
		}, "Server URL must not have trailing slash.")
	},
}

var exampleComPattern = regexp.MustCompile(`^https?://(www\.)?example\.com/?`)

var oas3ServerNotExampleCom = Rule{
	Name:        "oas3-server-not-example.com",
	Description: "Server URL must not point at example.com.",
	Severity:    SeverityWarn,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		return eachServerURL(t, exampleComPattern.MatchString, "Server URL must not point at example.com.")
	},
}

func eachServerURL(t *target, violates func(string) bool, message string) []Finding {
	seq := sequence(t.tree.get("servers"))
	if seq == nil {
		return nil
	}
	var out []Finding
	for i, server := range seq.Content {
		url, ok := scalar(field(server, "url"))
		if ok && violates(url) {
			out = append(out, t.finding(message, "servers", strconv.Itoa(i), "url"))
		}
	}
	return out
}

var oas2APIHost = Rule{
	Name:        "oas2-api-host",
	Description: "OpenAPI \"host\" must be present and non-empty string.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS2},
	check: func(t *target) []Finding {
		if truthy(t.tree.get("host")) {
			return nil
		}
		return []Finding{t.finding("OpenAPI \"host\" must be present and non-empty string.")}
	},
}

var oas2APISchemes = Rule{
	Name:        "oas2-api-schemes",
	Description: "OpenAPI host \"schemes\" must be present and non-empty array.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS2},
	check: func(t *target) []Finding {
		if seq := sequence(t.tree.get("schemes")); seq != nil && len(seq.Content) > 0 {
			return nil
		}
		return []Finding{t.finding("OpenAPI host \"schemes\" must be present and non-empty array.")}
	},
}
