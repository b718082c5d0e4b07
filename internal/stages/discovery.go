package stages

import (
	"context"
	"strings"

	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/textutil"
)

// IdeaDiscovery proposes the first catalogue idea whose topic is not excluded.
type IdeaDiscovery struct {
	Catalogue []stage.IdeaCandidate
}

// Invoke implements stage.Handler.
func (d *IdeaDiscovery) Invoke(ctx context.Context, in stage.Input) (stage.Output, error) {
	if err := ctx.Err(); err != nil {
		return stage.Output{}, err
	}
	excluded := make(map[string]struct{}, len(in.Exclude))
	for _, topic := range in.Exclude {
		excluded[textutil.NormalizeTopicKey(topic)] = struct{}{}
	}
	for _, idea := range d.Catalogue {
		if _, skip := excluded[textutil.NormalizeTopicKey(idea.Title)]; skip {
			continue
		}
		return stage.Output{Payload: idea}, nil
	}
	return stage.Output{}, services.Wrap(services.ErrPermanent, in.Stage, "discover idea",
		"idea catalogue exhausted; every topic is taken or rejected", nil)
}

// HealthCheck implements stage.Handler.
func (d *IdeaDiscovery) HealthCheck(context.Context) stage.Health {
	if len(d.Catalogue) == 0 {
		return stage.Unhealthy(stage.NameIdeaDiscovery, "idea catalogue is empty")
	}
	return stage.Healthy(stage.NameIdeaDiscovery)
}

// DefaultCatalogue is the built-in seed list of micro-SaaS ideas.
func DefaultCatalogue() []stage.IdeaCandidate {
	return []stage.IdeaCandidate{
		idea("Invoice Chaser", "Automated, polite reminders for unpaid freelancer invoices",
			"Freelancers lose hours chasing late payments by hand", "freelancers", "fintech",
			pain("Manually emailing clients about overdue invoices", 8, "weekly", "Reddit r/freelance")),
		idea("Standup Digest", "Async standup summaries compiled from commit history",
			"Remote teams waste meeting time on status updates", "engineering managers", "developer-tools",
			pain("Daily standups run long across time zones", 6, "daily", "HN")),
		idea("Menu Translator", "Instant multilingual menus for independent restaurants",
			"Small restaurants cannot afford professional menu translation", "restaurant owners", "hospitality",
			pain("Tourists cannot read the menu and order less", 7, "daily", "Google reviews")),
		idea("Lease Clause Checker", "Plain-language warnings about risky rental lease clauses",
			"Renters sign leases without understanding penalty clauses", "first-time renters", "legal",
			pain("Unexpected fees discovered after signing", 8, "monthly", "Reddit r/renting")),
		idea("Grant Deadline Radar", "Matched funding calls with deadline tracking for nonprofits",
			"Small nonprofits miss grants because discovery is manual", "nonprofit directors", "nonprofit",
			pain("Spreadsheets of grant deadlines go stale", 7, "weekly", "nonprofit forums")),
		idea("Shift Swap Board", "Self-serve shift swaps with manager approval for hourly teams",
			"Shift changes are negotiated in chaotic group chats", "retail shift managers", "workforce",
			pain("Missed shifts because swaps were not recorded", 7, "weekly", "G2 reviews")),
		idea("Podcast Clip Studio", "Turn long podcast episodes into captioned social clips",
			"Independent podcasters lack time to edit promotional clips", "independent podcasters", "media",
			pain("Editing clips takes longer than recording", 6, "weekly", "Twitter")),
		idea("Vet Visit Log", "Shared pet health records for multi-pet households",
			"Pet owners lose track of vaccinations and medications", "pet owners", "consumer",
			pain("Forgotten vaccination boosters", 5, "monthly", "Reddit r/dogs")),
		idea("Contractor Quote Compare", "Side-by-side comparison of home renovation quotes",
			"Homeowners cannot compare inconsistent contractor quotes", "homeowners", "home-services",
			pain("Quotes list different line items and hide costs", 7, "monthly", "home improvement forums")),
		idea("Changelog Mailer", "Customer-facing release notes generated from merged pull requests",
			"Small SaaS teams never get around to announcing releases", "indie founders", "developer-tools",
			pain("Customers do not know about new features", 6, "weekly", "Indie Hackers")),
	}
}

func idea(title, oneLiner, problem, audience, category string, pains ...stage.PainPoint) stage.IdeaCandidate {
	return stage.IdeaCandidate{
		Title:            title,
		OneLiner:         oneLiner,
		ProblemStatement: problem,
		TargetAudience:   audience,
		Category:         category,
		PainPoints:       pains,
	}
}

func pain(description string, severity int, frequency, source string) stage.PainPoint {
	return stage.PainPoint{Description: description, Severity: severity, Frequency: frequency, Source: source}
}

// slug converts a title into a hostname-safe label.
func slug(title string) string {
	key := textutil.NormalizeTopicKey(title)
	key = strings.Trim(key, "-")
	if len(key) > 40 {
		key = strings.TrimRight(key[:40], "-")
	}
	if key == "" {
		return "experiment"
	}
	return key
}
