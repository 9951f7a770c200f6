package ui

import (
	"strconv"

	twmerge "github.com/Oudwins/tailwind-merge-go"

	"github.com/siapp-dev/siapp/internal/models"
)

//go:generate templ generate

// FlashKind selects the styling of a flash message.
type FlashKind string

// Flash kinds.
const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

// Flash is a one-off message shown above a form.
type Flash struct {
	Kind    FlashKind
	Message string
}

// DashboardView is the data shown on the admin dashboard.
type DashboardView struct {
	Stats models.Stats
	Apps  []*models.App
	Query string
	User  string
}

// ManageView is the data shown on the manage page.
type ManageView struct {
	Apps  []*models.App
	Edit  *models.App
	Flash *Flash
	User  string
}

// LoginView is the data shown on the login page.
type LoginView struct {
	Username string
	Redirect string
	Flash    *Flash
}

// FormView is the data shown on the public registration form.
type FormView struct {
	Name  string
	URL   string
	Flash *Flash
}

// SuccessView is shown after a public registration.
type SuccessView struct {
	App      *models.App
	ShortURL string
}

const (
	buttonClass = "inline-flex items-center justify-center rounded-lg bg-green-600 px-4 py-2 text-sm font-semibold text-white shadow-sm hover:bg-green-700"
	inputClass  = "mt-1 block w-full rounded-lg border border-gray-300 px-3 py-2 text-sm shadow-sm focus:border-green-500 focus:outline-none focus:ring-1 focus:ring-green-500"
	labelClass  = "block text-sm font-medium text-gray-700"
	cardClass   = "rounded-xl bg-white p-6 shadow"
	linkClass   = "text-green-700 hover:underline"
	navLink     = "text-gray-600 hover:text-green-700"
)

var flashClasses = map[FlashKind]string{
	FlashSuccess: "border-green-200 bg-green-50 text-green-800",
	FlashError:   "border-red-200 bg-red-50 text-red-800",
	FlashInfo:    "border-blue-200 bg-blue-50 text-blue-800",
}

type navItem struct {
	Path  string
	Label string
}

var adminNav = []navItem{
	{"/admin/", "Dashboard"},
	{"/admin/manage", "Manage"},
	{"/admin/export", "Export"},
}

type statCard struct {
	Label string
	Value string
}

// cx merges Tailwind class lists; later classes win over conflicting earlier ones.
func cx(classes ...string) string {
	return twmerge.Merge(classes...)
}

func navClass(active bool) string {
	if active {
		return cx(navLink, "font-semibold text-green-700")
	}
	return navLink
}

func dashboardStats(s models.Stats) []statCard {
	return []statCard{
		{"Applications", strconv.Itoa(s.TotalApps)},
		{"Slugs", strconv.Itoa(s.TotalSlugs)},
		{"Templates", strconv.Itoa(s.ActiveTemplates)},
		{"Last updated", orDash(s.LastUpdated)},
	}
}

// formApp returns the values to prefill the manage form with.
func formApp(edit *models.App) models.App {
	if edit == nil {
		return models.App{}
	}
	return *edit
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
