package workflow

import (
	"golang.org/x/text/language"
)

// Tone groups statuses by how they should be highlighted.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneWarning Tone = "warning"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
)

// Supported label languages.
const (
	LangEnglish = "en"
	LangKannada = "kn"
	LangHindi   = "hi"
)

// StatusInfo is the canonical presentation of a status.
type StatusInfo struct {
	Entity   Entity            `json:"entity"`
	Status   Status            `json:"status"`
	Order    int               `json:"order"`
	Tone     Tone              `json:"tone"`
	Color    string            `json:"color"`
	Icon     string            `json:"icon"`
	Terminal bool              `json:"terminal"`
	Labels   map[string]string `json:"-"`
}

// StatusLabel is StatusInfo resolved to one language.
type StatusLabel struct {
	Entity   Entity `json:"entity"`
	Status   Status `json:"status"`
	Label    string `json:"label"`
	Order    int    `json:"order"`
	Tone     Tone   `json:"tone"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
	Terminal bool   `json:"terminal"`
}

var catalog = []StatusInfo{
	{Entity: EntityIssue, Status: StatusSubmitted, Order: 1, Tone: ToneNeutral, Color: "#64748b", Icon: "inbox",
		Labels: map[string]string{LangEnglish: "Submitted", LangKannada: "ಸಲ್ಲಿಸಲಾಗಿದೆ", LangHindi: "प्रस्तुत"}},
	{Entity: EntityIssue, Status: StatusVIVerified, Order: 2, Tone: ToneInfo, Color: "#0891b2", Icon: "badge-check",
		Labels: map[string]string{LangEnglish: "Verified", LangKannada: "ಪರಿಶೀಲಿಸಲಾಗಿದೆ", LangHindi: "सत्यापित"}},
	{Entity: EntityIssue, Status: StatusPDOAssigned, Order: 3, Tone: ToneInfo, Color: "#2563eb", Icon: "user-check",
		Labels: map[string]string{LangEnglish: "Assigned", LangKannada: "ನಿಯೋಜಿಸಲಾಗಿದೆ", LangHindi: "सौंपा गया"}},
	{Entity: EntityIssue, Status: StatusInProgress, Order: 4, Tone: ToneWarning, Color: "#f59e0b", Icon: "loader",
		Labels: map[string]string{LangEnglish: "In progress", LangKannada: "ಪ್ರಗತಿಯಲ್ಲಿದೆ", LangHindi: "प्रगति में"}},
	{Entity: EntityIssue, Status: StatusEscalatedToTDO, Order: 5, Tone: ToneDanger, Color: "#ea580c", Icon: "arrow-up",
		Labels: map[string]string{LangEnglish: "Escalated to TDO", LangKannada: "ಟಿಡಿಒಗೆ ಏರಿಸಲಾಗಿದೆ", LangHindi: "टीडीओ को अग्रेषित"}},
	{Entity: EntityIssue, Status: StatusEscalatedToDDO, Order: 6, Tone: ToneDanger, Color: "#dc2626", Icon: "arrow-up-circle",
		Labels: map[string]string{LangEnglish: "Escalated to DDO", LangKannada: "ಡಿಡಿಒಗೆ ಏರಿಸಲಾಗಿದೆ", LangHindi: "डीडीओ को अग्रेषित"}},
	{Entity: EntityIssue, Status: StatusResolved, Order: 7, Tone: ToneSuccess, Color: "#16a34a", Icon: "check-circle", Terminal: true,
		Labels: map[string]string{LangEnglish: "Resolved", LangKannada: "ಪರಿಹರಿಸಲಾಗಿದೆ", LangHindi: "हल किया गया"}},
	{Entity: EntityIssue, Status: StatusClosed, Order: 8, Tone: ToneNeutral, Color: "#475569", Icon: "x-circle", Terminal: true,
		Labels: map[string]string{LangEnglish: "Closed", LangKannada: "ಮುಚ್ಚಲಾಗಿದೆ", LangHindi: "बंद"}},

	{Entity: EntityFundRequest, Status: StatusPending, Order: 1, Tone: ToneWarning, Color: "#f59e0b", Icon: "clock",
		Labels: map[string]string{LangEnglish: "Pending", LangKannada: "ಬಾಕಿ ಇದೆ", LangHindi: "लंबित"}},
	{Entity: EntityFundRequest, Status: StatusApproved, Order: 2, Tone: ToneInfo, Color: "#2563eb", Icon: "thumbs-up",
		Labels: map[string]string{LangEnglish: "Approved", LangKannada: "ಅನುಮೋದಿಸಲಾಗಿದೆ", LangHindi: "स्वीकृत"}},
	{Entity: EntityFundRequest, Status: StatusRejected, Order: 3, Tone: ToneDanger, Color: "#dc2626", Icon: "thumbs-down", Terminal: true,
		Labels: map[string]string{LangEnglish: "Rejected", LangKannada: "ತಿರಸ್ಕರಿಸಲಾಗಿದೆ", LangHindi: "अस्वीकृत"}},
	{Entity: EntityFundRequest, Status: StatusDisbursed, Order: 4, Tone: ToneSuccess, Color: "#16a34a", Icon: "banknote", Terminal: true,
		Labels: map[string]string{LangEnglish: "Disbursed", LangKannada: "ವಿತರಿಸಲಾಗಿದೆ", LangHindi: "वितरित"}},
}

var (
	supportedLangs = []string{LangEnglish, LangKannada, LangHindi}
	langMatcher    = language.NewMatcher([]language.Tag{
		language.English,
		language.MustParse(LangKannada),
		language.Hindi,
	})
)

// Catalog returns the presentation entries of entity, or of every entity when entity is empty.
func Catalog(entity Entity) []StatusInfo {
	out := make([]StatusInfo, 0, len(catalog))
	for _, info := range catalog {
		if entity == "" || info.Entity == entity {
			out = append(out, info)
		}
	}
	return out
}

// Localize resolves info to lang, falling back to English.
func (info StatusInfo) Localize(lang string) StatusLabel {
	label, ok := info.Labels[lang]
	if !ok {
		label = info.Labels[LangEnglish]
	}
	return StatusLabel{
		Entity:   info.Entity,
		Status:   info.Status,
		Label:    label,
		Order:    info.Order,
		Tone:     info.Tone,
		Color:    info.Color,
		Icon:     info.Icon,
		Terminal: info.Terminal,
	}
}

// Describe looks up status for entity. Unknown statuses get a neutral entry labelled with the raw value.
func Describe(entity Entity, status Status, lang string) StatusLabel {
	for _, info := range catalog {
		if info.Entity == entity && info.Status == status {
			return info.Localize(lang)
		}
	}
	return StatusLabel{Entity: entity, Status: status, Label: string(status), Tone: ToneNeutral, Color: "#94a3b8", Icon: "help-circle"}
}

// MatchLanguage picks the best supported language for the given preferences,
// each either a bare tag ("kn") or an Accept-Language header value.
func MatchLanguage(prefs ...string) string {
	var tags []language.Tag
	for _, pref := range prefs {
		if pref == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return LangEnglish
	}
	_, index, confidence := langMatcher.Match(tags...)
	if confidence == language.No {
		return LangEnglish
	}
	return supportedLangs[index]
}
