package news

import "github.com/0x0BSoD/dailyDigest/internal/model"

// FallbackArticles is the static digest content used whenever the provider
// is unreachable or misconfigured. Kept evergreen on purpose so a stale
// batch still reads sensibly.
func FallbackArticles() []model.Article {
	return []model.Article{
		{
			Title:       "Latest Developments in Artificial Intelligence Research",
			URL:         "https://www.nature.com/subjects/machine-learning",
			Description: "Stay updated with cutting-edge research in AI and machine learning from leading scientific journals and institutions worldwide.",
			Category:    "AI",
		},
		{
			Title:       "AI Industry Trends and Market Analysis",
			URL:         "https://www.mckinsey.com/capabilities/quantumblack/our-insights",
			Description: "Comprehensive analysis of AI adoption trends, market opportunities, and business transformation strategies across industries.",
			Category:    "AI",
		},
		{
			Title:       "OpenAI and AI Safety Research Updates",
			URL:         "https://openai.com/research",
			Description: "Latest research publications and safety developments from OpenAI and other leading AI research organizations.",
			Category:    "AI",
		},
		{
			Title:       "Machine Learning Tools and Frameworks",
			URL:         "https://github.com/topics/machine-learning",
			Description: "Discover new tools, libraries, and frameworks that are shaping the future of machine learning development.",
			Category:    "AI",
		},
		{
			Title:       "AI Ethics and Responsible AI Development",
			URL:         "https://www.partnershiponai.org",
			Description: "Important discussions on AI ethics, bias mitigation, and responsible development practices in artificial intelligence.",
			Category:    "AI",
		},
	}
}
