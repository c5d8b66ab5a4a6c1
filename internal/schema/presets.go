package schema

import "github.com/rotisserie/eris"

// Candidates is the shape of a harvested search result.
func Candidates() Schema {
	return Schema{
		Name: "candidate",
		Fields: []Field{
			{Name: "title", Required: true, Kind: KindString, Description: "Title of the search result"},
			{Name: "url", Required: true, Kind: KindURL, Description: "Absolute URL of the result"},
			{Name: "snippet", Kind: KindString, Description: "Short description shown under the result"},
		},
	}
}

// Profile is the enrichment shape for a social-media profile page.
func Profile() Schema {
	return Schema{
		Name: "profile",
		Fields: []Field{
			{Name: IdentifierField, Required: true, Kind: KindURL, Description: "URL of the profile"},
			{Name: "username", Kind: KindString, Description: "Account handle without the @"},
			{Name: "bio", Kind: KindString, Description: "Profile biography text"},
			{Name: "followers", Kind: KindString, Description: "Follower count as displayed"},
			{Name: "email", Kind: KindString, Description: "Contact email address"},
			{Name: "phone", Kind: KindPhone, Description: "Contact phone or WhatsApp number"},
			{Name: "location", Kind: KindString, Description: "City, region or address"},
			{Name: "category", Kind: KindString, Description: "Business category shown on the profile"},
			{Name: "website", Kind: KindString, Description: "External website or link-in-bio"},
		},
	}
}

// Website is the enrichment shape for a business website.
func Website() Schema {
	return Schema{
		Name: "website",
		Fields: []Field{
			{Name: IdentifierField, Required: true, Kind: KindURL, Description: "URL of the page"},
			{Name: "emails", Kind: KindList, Description: "All email addresses found on the page"},
			{Name: "contact_links", Kind: KindList, Description: "Links to contact pages, forms or messaging apps"},
			{Name: "summary", Kind: KindString, Description: "One or two sentence summary of the business"},
			{Name: "phone", Kind: KindPhone, Description: "Main contact phone number"},
		},
	}
}

// Preset returns a built-in enrichment schema by name.
func Preset(name string) (Schema, error) {
	switch name {
	case "profile", "":
		return Profile(), nil
	case "website":
		return Website(), nil
	default:
		return Schema{}, eris.Errorf("schema: unknown preset %q", name)
	}
}
