package main

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Zachkp/portfolio/internal/store"
)

type Project struct {
	Slug        string
	Title       string
	Subtitle    string
	Description string
	Image       string
	Tech        []string
	Source      string
	Live        string
}

type Skill struct {
	Name     string
	Icon     string
	Category string
}

type Testimonial struct {
	Name    string
	Role    string
	Company string
	Quote   string
	Rating  int
}

type Social struct {
	Slug  string
	Label string
	URL   string
}

var (
	OwnerName     = "Isaac Adeyemi"
	OwnerTagline  = "Frontend Developer • Kaduna, Nigeria"
	OwnerEmail    = "isaacadeyemi9@gmail.com"
	HeroSubtitle  = "Crafting beautiful and performant web experiences with modern technologies"
	HeroTitles    = []string{"Frontend Developer", "UI Engineer", "React Specialist", "Performance Optimizer"}
	SuccessNotice = "Thanks for reaching out! I'll get back to you in less than 24 hours."

	AboutMe = `I build interfaces that feel fast and look sharp. Most of my work lives in the React
	ecosystem and modern web technologies, and I specialize in creating responsive, accessible
	applications with close attention to performance and detail. I enjoy working with product
	teams to turn rough ideas into polished experiences people actually like using.`

	Projects = []Project{
		{
			Slug:        "triptailor",
			Title:       "TripTailor",
			Subtitle:    "Soon to launch Trip Creation, Group Travel & Real-Time Messaging App",
			Description: "A comprehensive travel planning platform with real-time collaboration features, allowing groups to plan trips together with live chat, itinerary sharing, and expense tracking.",
			Image:       "/images/triptailor-hero.png",
			Tech:        []string{"React", "Next.js", "TypeScript", "WebSocket", "Pusher", "Tailwind", "Node.js"},
			Source:      "https://github.com/The-isaacagboola/trips-app",
			Live:        "https://triptailor.co",
		},
		{
			Slug:        "matchme",
			Title:       "MatchMe - A FullStack Dating App Project",
			Subtitle:    "Fullstack Dating App Personal Project",
			Description: "A modern dating platform built with Next.js, offering intelligent matchmaking, user profiles, real-time messaging, and swipe-based interactions. Designed to connect people based on preferences, location, and compatibility.",
			Image:       "/images/dating-app.jpg",
			Tech:        []string{"React", "TypeScript", "Monaco Editor", "Node.js", "Pusher", "WebSocket", "Express"},
			Source:      "https://github.com/The-isaacagboola/fullstack-dating-app",
			Live:        "https://match-me-eta.vercel.app/",
		},
		{
			Slug:        "vscode-clone",
			Title:       "ReactJS VS Code Clone",
			Subtitle:    "In Progress: Open-source Developer Productivity Tool",
			Description: "An in-browser code editor inspired by Visual Studio Code, built with React and TypeScript. It features tabbed editing, file navigation, syntax highlighting, and theme switching.",
			Image:       "/images/vscode-clone.png",
			Tech:        []string{"React", "TypeScript", "Tailwind", "Monaco Editor", "Vite", "zustand", "Prism.js"},
			Source:      "https://github.com/The-isaacagboola/vscode-react-clone",
			Live:        "https://vscode-react-clone.vercel.app",
		},
	}

	Skills = []Skill{
		{"React", "⚛️", "Frontend"},
		{"Next.js", "▲", "Framework"},
		{"TypeScript", "📘", "Language"},
		{"Tailwind CSS", "🎨", "Styling"},
		{"Redux", "🔄", "State"},
		{"Node.js", "🟢", "Backend"},
		{"Express", "🚀", "Backend"},
		{"Vite", "⚡", "Build Tool"},
		{"Framer Motion", "🎭", "Animation"},
		{"Git", "📝", "Version Control"},
	}

	Testimonials = []Testimonial{
		{
			Name:    "Oluwatobi Bamidele",
			Role:    "Co-Founder & CTO",
			Company: "Mavapay",
			Quote:   "Working with Isaac is a pleasure. He not only delivers high-quality code but also has an excellent relationship with the team",
			Rating:  5,
		},
		{
			Name:    "Mobolaji Oginni",
			Role:    "Engineering Lead",
			Company: "Tobams Group",
			Quote:   "Isaac delivered exceptional work on our React application. His attention to detail and performance optimization skills are outstanding.",
			Rating:  5,
		},
	}

	Socials = []Social{
		{Slug: "github", Label: "GitHub", URL: "https://github.com/The-isaacagboola"},
		{Slug: "linkedin", Label: "LinkedIn", URL: "https://www.linkedin.com/in/isaac-adeyemi-4308a1259/"},
		{Slug: "email", Label: "Email", URL: "mailto:isaacadeyemi9@gmail.com"},
	}
)

// trackedLinks lists every outbound link served through /go/:slug.
func trackedLinks() []store.Link {
	links := make([]store.Link, 0, len(Projects)*2+len(Socials))
	for _, p := range Projects {
		links = append(links,
			store.Link{Slug: p.Slug + "-source", URL: p.Source, Label: p.Title + " (source)"},
			store.Link{Slug: p.Slug + "-live", URL: p.Live, Label: p.Title + " (live)"},
		)
	}
	for _, s := range Socials {
		links = append(links, store.Link{Slug: s.Slug, URL: s.URL, Label: s.Label})
	}
	return links
}

// heroTitle returns the rotating title at position i, wrapping around.
func heroTitle(i int) (string, int) {
	n := len(HeroTitles)
	i = ((i % n) + n) % n
	return HeroTitles[i], (i + 1) % n
}

func initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
