package whatsapp

import "strings"

const (
	ContactSuffix = "@c.us"
	GroupSuffix   = "@g.us"
)

// FormatChatID appends the contact or group suffix unless id already carries a domain.
func FormatChatID(id string, isGroup bool) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "@") {
		return id
	}
	if isGroup {
		return id + GroupSuffix
	}

	return id + ContactSuffix
}

// StripContactSuffix removes the individual-contact domain from an id.
func StripContactSuffix(id string) string {
	return strings.ReplaceAll(id, ContactSuffix, "")
}

// ContactChatID keeps only the digits of a typed phone number and appends @c.us.
func ContactChatID(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.Contains(phone, "@") {
		return phone
	}

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	return digits.String() + ContactSuffix
}

// ChatKey is the form chat ids take inside normalized messages: group ids keep
// their domain, contacts lose it.
func ChatKey(id string, isGroup bool) string {
	return StripContactSuffix(FormatChatID(id, isGroup))
}
