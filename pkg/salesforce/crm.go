package salesforce

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

// ContactHistory is the CRM record for one person, found either as a Contact
// or as a Lead.
type ContactHistory struct {
	ID               string
	Object           string // "Contact" or "Lead"
	Name             string
	Email            string
	Title            string
	Company          string
	Status           string // Lead only
	LastActivityDate string
	Activities       []model.InteractionRecord
}

// CRM performs the domain lookups the pipeline needs. All methods return
// (nil, nil) when no record matches; errors are reserved for API failures.
type CRM struct {
	client Client
}

// NewCRM wraps a Client with domain lookups.
func NewCRM(client Client) *CRM {
	return &CRM{client: client}
}

type contactRow struct {
	ID               string  `json:"Id"`
	Name             string  `json:"Name"`
	Email            string  `json:"Email"`
	Title            string  `json:"Title"`
	LastActivityDate string  `json:"LastActivityDate"`
	Account          nameRef `json:"Account"`
}

type leadRow struct {
	ID               string `json:"Id"`
	Name             string `json:"Name"`
	Email            string `json:"Email"`
	Company          string `json:"Company"`
	Title            string `json:"Title"`
	Status           string `json:"Status"`
	LastActivityDate string `json:"LastActivityDate"`
}

type taskRow struct {
	Subject      string  `json:"Subject"`
	Description  string  `json:"Description"`
	ActivityDate string  `json:"ActivityDate"`
	Type         string  `json:"Type"`
	CreatedDate  string  `json:"CreatedDate"`
	Owner        nameRef `json:"Owner"`
}

type eventRow struct {
	Subject      string  `json:"Subject"`
	Description  string  `json:"Description"`
	ActivityDate string  `json:"ActivityDate"`
	Owner        nameRef `json:"Owner"`
}

type accountRow struct {
	ID               string  `json:"Id"`
	Name             string  `json:"Name"`
	Type             string  `json:"Type"`
	Industry         string  `json:"Industry"`
	LastActivityDate string  `json:"LastActivityDate"`
	Owner            nameRef `json:"Owner"`
}

type opportunityRow struct {
	ID          string   `json:"Id"`
	Name        string   `json:"Name"`
	StageName   string   `json:"StageName"`
	Amount      *float64 `json:"Amount"`
	CloseDate   string   `json:"CloseDate"`
	Probability *float64 `json:"Probability"`
	Type        string   `json:"Type"`
	NextStep    string   `json:"NextStep"`
	Description string   `json:"Description"`
	Roadblocks  string   `json:"Roadblocks__c"`
	Owner       nameRef  `json:"Owner"`
}

type contentLinkRow struct {
	ContentDocumentID string   `json:"ContentDocumentId"`
	ContentDocument   titleRef `json:"ContentDocument"`
}

type noteRow struct {
	Title string `json:"Title"`
	Body  string `json:"Body"`
}

type contentNoteBody struct {
	Content     string `json:"Content"`
	TextPreview string `json:"TextPreview"`
}

type nameRef struct {
	Name string `json:"Name"`
}

type titleRef struct {
	Title string `json:"Title"`
}

// LookupContact finds a person by email, checking Contacts first and falling
// back to Leads, and loads their recent activity history.
func (c *CRM) LookupContact(ctx context.Context, email string) (*ContactHistory, error) {
	if email == "" {
		return nil, nil
	}

	var contacts []contactRow
	soql := fmt.Sprintf(
		"SELECT Id, Name, Email, Account.Name, Title, LastActivityDate "+
			"FROM Contact WHERE Email = '%s' LIMIT 1", Escape(email))
	if err := c.client.Query(ctx, soql, &contacts); err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		rec := contacts[0]
		history := &ContactHistory{
			ID:               rec.ID,
			Object:           "Contact",
			Name:             rec.Name,
			Email:            email,
			Title:            rec.Title,
			Company:          rec.Account.Name,
			LastActivityDate: rec.LastActivityDate,
		}
		c.loadActivities(ctx, history)
		return history, nil
	}

	var leads []leadRow
	soql = fmt.Sprintf(
		"SELECT Id, Name, Email, Company, Title, Status, LastActivityDate "+
			"FROM Lead WHERE Email = '%s' LIMIT 1", Escape(email))
	if err := c.client.Query(ctx, soql, &leads); err != nil {
		return nil, err
	}
	if len(leads) > 0 {
		rec := leads[0]
		history := &ContactHistory{
			ID:               rec.ID,
			Object:           "Lead",
			Name:             rec.Name,
			Email:            email,
			Title:            rec.Title,
			Company:          rec.Company,
			Status:           rec.Status,
			LastActivityDate: rec.LastActivityDate,
		}
		c.loadActivities(ctx, history)
		return history, nil
	}

	return nil, nil
}

// loadActivities pulls tasks and events for a contact or lead. Activity load
// failures are logged and leave the history partially filled rather than
// failing the lookup.
func (c *CRM) loadActivities(ctx context.Context, history *ContactHistory) {
	var tasks []taskRow
	soql := fmt.Sprintf(
		"SELECT Subject, Description, ActivityDate, Type, CreatedDate, Owner.Name "+
			"FROM Task WHERE WhoId = '%s' ORDER BY CreatedDate DESC LIMIT 15", Escape(history.ID))
	if err := c.client.Query(ctx, soql, &tasks); err != nil {
		zap.L().Warn("sf: load tasks failed", zap.String("id", history.ID), zap.Error(err))
	}
	for _, t := range tasks {
		notes := cleanNotes(t.Description)
		if t.Subject == "" && notes == "" {
			continue
		}
		date := t.ActivityDate
		if date == "" && len(t.CreatedDate) >= 10 {
			date = t.CreatedDate[:10]
		}
		activityType := t.Type
		if activityType == "" {
			activityType = guessActivityType(t.Subject)
		}
		history.Activities = append(history.Activities, model.InteractionRecord{
			Date:         date,
			ActivityType: activityType,
			Subject:      t.Subject,
			Notes:        notes,
			Owner:        t.Owner.Name,
		})
	}

	var events []eventRow
	soql = fmt.Sprintf(
		"SELECT Subject, Description, ActivityDate, Owner.Name "+
			"FROM Event WHERE WhoId = '%s' ORDER BY ActivityDate DESC LIMIT 10", Escape(history.ID))
	if err := c.client.Query(ctx, soql, &events); err != nil {
		zap.L().Warn("sf: load events failed", zap.String("id", history.ID), zap.Error(err))
	}
	for _, e := range events {
		if strings.HasPrefix(strings.ToLower(e.Subject), "canceled:") {
			continue
		}
		history.Activities = append(history.Activities, model.InteractionRecord{
			Date:         e.ActivityDate,
			ActivityType: "Meeting",
			Subject:      e.Subject,
			Notes:        cleanNotes(e.Description),
			Owner:        e.Owner.Name,
		})
	}

	sort.SliceStable(history.Activities, func(i, j int) bool {
		di, dj := history.Activities[i].Date, history.Activities[j].Date
		if di == "" {
			di = "0000"
		}
		if dj == "" {
			dj = "0000"
		}
		return di > dj
	})
}

// LookupAccount finds an Account by company name and pulls its opportunities
// and notes. Matching tries exact name, then LIKE, then the name with legal
// suffixes stripped, then without a leading "The ".
func (c *CRM) LookupAccount(ctx context.Context, accountName string) (*model.SFAccountInfo, error) {
	if accountName == "" {
		return nil, nil
	}

	const accountFields = "SELECT Id, Name, Owner.Name, Type, Industry, LastActivityDate FROM Account"
	escaped := Escape(accountName)

	candidates := []string{
		fmt.Sprintf("%s WHERE Name = '%s' LIMIT 1", accountFields, escaped),
		fmt.Sprintf("%s WHERE Name LIKE '%%%s%%' LIMIT 1", accountFields, escaped),
	}
	if normalized := stripFirmSuffix(accountName); normalized != accountName {
		candidates = append(candidates,
			fmt.Sprintf("%s WHERE Name LIKE '%%%s%%' LIMIT 1", accountFields, Escape(normalized)))
	}
	if strings.HasPrefix(strings.ToLower(accountName), "the ") {
		candidates = append(candidates,
			fmt.Sprintf("%s WHERE Name LIKE '%%%s%%' LIMIT 1", accountFields, Escape(accountName[4:])))
	}

	var rec *accountRow
	for _, soql := range candidates {
		var rows []accountRow
		if err := c.client.Query(ctx, soql, &rows); err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			rec = &rows[0]
			break
		}
	}
	if rec == nil {
		return nil, nil
	}

	info := &model.SFAccountInfo{
		AccountID:        rec.ID,
		AccountName:      rec.Name,
		AccountOwner:     rec.Owner.Name,
		AccountType:      rec.Type,
		Industry:         rec.Industry,
		LastActivityDate: rec.LastActivityDate,
	}

	info.Opportunities = c.loadOpportunities(ctx, rec.ID)
	info.Notes = c.loadNotes(ctx, rec.ID, 10)

	zap.L().Info("sf: account matched",
		zap.String("account", info.AccountName),
		zap.Int("opportunities", len(info.Opportunities)),
		zap.Int("notes", len(info.Notes)),
	)
	return info, nil
}

// loadOpportunities queries opportunities with the custom Roadblocks__c field
// first and retries without it, since the field only exists in some orgs.
func (c *CRM) loadOpportunities(ctx context.Context, accountID string) []model.SFOpportunity {
	const oppFields = "Id, Name, StageName, Amount, CloseDate, Owner.Name, " +
		"Probability, Type, NextStep, Description"

	var rows []opportunityRow
	soql := fmt.Sprintf(
		"SELECT %s, Roadblocks__c FROM Opportunity WHERE AccountId = '%s' "+
			"ORDER BY CloseDate DESC LIMIT 10", oppFields, Escape(accountID))
	if err := c.client.Query(ctx, soql, &rows); err != nil || len(rows) == 0 {
		rows = nil
		soql = fmt.Sprintf(
			"SELECT %s FROM Opportunity WHERE AccountId = '%s' "+
				"ORDER BY CloseDate DESC LIMIT 10", oppFields, Escape(accountID))
		if err := c.client.Query(ctx, soql, &rows); err != nil {
			zap.L().Warn("sf: load opportunities failed", zap.String("account", accountID), zap.Error(err))
			return nil
		}
	}

	opps := make([]model.SFOpportunity, 0, len(rows))
	for _, row := range rows {
		desc := cleanNotes(row.Description)
		if len(desc) > 500 {
			desc = truncateAtWord(desc, 500) + "..."
		}
		var probability string
		if row.Probability != nil {
			probability = fmt.Sprintf("%g", *row.Probability)
		}
		opp := model.SFOpportunity{
			Name:        row.Name,
			Stage:       row.StageName,
			Amount:      formatAmount(row.Amount),
			CloseDate:   row.CloseDate,
			Owner:       row.Owner.Name,
			Probability: probability,
			OppType:     row.Type,
			NextStep:    row.NextStep,
			Roadblocks:  strings.TrimSpace(row.Roadblocks),
			Description: desc,
		}
		if row.ID != "" {
			opp.OppNotes = c.loadNotes(ctx, row.ID, 5)
		}
		opps = append(opps, opp)
	}
	return opps
}

// loadNotes fetches notes linked to any entity. Enhanced ContentNotes are
// preferred; classic Note objects are the fallback when none exist.
func (c *CRM) loadNotes(ctx context.Context, entityID string, limit int) []string {
	var notes []string

	var links []contentLinkRow
	soql := fmt.Sprintf(
		"SELECT ContentDocumentId, ContentDocument.Title FROM ContentDocumentLink "+
			"WHERE LinkedEntityId = '%s' AND ContentDocument.FileType = 'SNOTE' "+
			"ORDER BY ContentDocument.CreatedDate DESC LIMIT %d", Escape(entityID), limit)
	if err := c.client.Query(ctx, soql, &links); err != nil {
		zap.L().Debug("sf: load content notes failed", zap.String("entity", entityID), zap.Error(err))
	}
	for _, link := range links {
		body := c.fetchNoteContent(ctx, link.ContentDocumentID)
		if text := joinTitleBody(link.ContentDocument.Title, body); text != "" {
			notes = append(notes, text)
		}
	}
	if len(notes) > 0 {
		return notes
	}

	var classic []noteRow
	soql = fmt.Sprintf(
		"SELECT Title, Body FROM Note WHERE ParentId = '%s' "+
			"ORDER BY CreatedDate DESC LIMIT %d", Escape(entityID), limit)
	if err := c.client.Query(ctx, soql, &classic); err != nil {
		zap.L().Debug("sf: load classic notes failed", zap.String("entity", entityID), zap.Error(err))
	}
	for _, n := range classic {
		if text := joinTitleBody(n.Title, cleanNotes(n.Body)); text != "" {
			notes = append(notes, text)
		}
	}
	return notes
}

// fetchNoteContent pulls the full body of a ContentNote. The Content field is
// base64-encoded HTML; TextPreview is the fallback but caps at 255 chars.
func (c *CRM) fetchNoteContent(ctx context.Context, contentDocumentID string) string {
	if contentDocumentID == "" {
		return ""
	}
	var body contentNoteBody
	if err := c.client.Get(ctx, "/sobjects/ContentNote/"+contentDocumentID, &body); err != nil {
		zap.L().Debug("sf: fetch note content failed", zap.String("id", contentDocumentID), zap.Error(err))
		return ""
	}
	if body.Content == "" {
		return body.TextPreview
	}
	raw, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		return body.TextPreview
	}
	plain := stripHTML(string(raw))
	if len(plain) > 2000 {
		plain = truncateAtWord(plain, 2000) + "..."
	}
	return plain
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	htmlEntityRe = regexp.MustCompile(`(?i)&[a-z]+;`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	firmSuffixRe = regexp.MustCompile(`(?i),?\s*(Inc\.?|LLC|LP|L\.P\.|Ltd\.?|Corp\.?|Corporation|` +
		`Co\.?|Company|Group|Holdings|Partners|Advisors|` +
		`Capital\s+(?:Management|Advisors|Partners)|` +
		`Management|Advisory|Associates|International)\s*$`)
)

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = htmlEntityRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripFirmSuffix removes common legal suffixes for fuzzy account matching.
func stripFirmSuffix(name string) string {
	return strings.TrimSpace(firmSuffixRe.ReplaceAllString(strings.TrimSpace(name), ""))
}

// cleanNotes strips Teams meeting boilerplate and email headers from free-text
// activity notes.
func cleanNotes(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if strings.Contains(text, "Microsoft Teams") && strings.Contains(text, "Join the meeting") {
		return ""
	}
	if strings.Contains(text, "Meeting ID:") && len(text) < 500 {
		return ""
	}

	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "To:") || strings.HasPrefix(stripped, "CC:") ||
			strings.HasPrefix(stripped, "BCC:") || strings.HasPrefix(stripped, "Attachment:") {
			continue
		}
		if len(cleaned) == 0 && (strings.HasPrefix(stripped, "Subject:") || strings.HasPrefix(stripped, "Body:")) {
			continue
		}
		if strings.HasPrefix(stripped, "________") {
			continue
		}
		cleaned = append(cleaned, line)
	}
	result := strings.TrimSpace(strings.Join(cleaned, "\n"))
	if len(result) > 2000 {
		result = truncateAtWord(result, 2000) + "..."
	}
	return result
}

// guessActivityType infers a type from the subject when the Task record has none.
func guessActivityType(subject string) string {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "call") || strings.Contains(s, "outbound") || strings.Contains(s, "inbound"):
		return "Call"
	case strings.Contains(s, "email"):
		return "Email"
	case strings.Contains(s, "meeting") || strings.Contains(s, "biweekly") || strings.Contains(s, "sync"):
		return "Meeting"
	default:
		return "Task"
	}
}

// formatAmount renders an opportunity amount as "$1,500,000".
func formatAmount(amount *float64) string {
	if amount == nil {
		return ""
	}
	whole := fmt.Sprintf("%.0f", *amount)
	negative := strings.HasPrefix(whole, "-")
	if negative {
		whole = whole[1:]
	}
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	out := "$" + strings.Join(parts, ",")
	if negative {
		out = "-" + out
	}
	return out
}

func truncateAtWord(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

func joinTitleBody(title, body string) string {
	switch {
	case title != "" && body != "":
		return title + ": " + body
	case title != "":
		return title
	default:
		return body
	}
}
