// Package intent maps free text to a typed Command. Classification is pure
// and deterministic: a fixed, ordered list of phrase families is tried and
// the first one that matches wins.
package intent

type Kind int

const (
	Conversation Kind = iota
	Add
	Complete
	Rename
	Delete
	Status
	List
	Navigate
	Logout
	Refresh
	ClearData
	Help
	AppInfo
	ShowToday
	ShowCalendar
)

var kindNames = map[Kind]string{
	Conversation: "conversation",
	Add:          "add_habit",
	Complete:     "complete_habit",
	Rename:       "edit_habit",
	Delete:       "delete_habit",
	Status:       "habit_status",
	List:         "show_habits",
	Navigate:     "navigate",
	Logout:       "logout",
	Refresh:      "refresh_page",
	ClearData:    "clear_data",
	Help:         "show_help",
	AppInfo:      "app_info",
	ShowToday:    "show_today",
	ShowCalendar: "show_calendar",
}

// String returns the action name reported to clients in habit_action.action.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Mutating reports whether the kind changes the habit store.
func (k Kind) Mutating() bool {
	switch k {
	case Add, Complete, Rename, Delete:
		return true
	}
	return false
}

// NeedsHabit reports whether the kind carries a habit reference to resolve.
func (k Kind) NeedsHabit() bool {
	switch k {
	case Add, Complete, Rename, Delete, Status:
		return true
	}
	return false
}

// Pages reachable by voice navigation.
const (
	PageHome      = "home"
	PageHabits    = "habits"
	PageAnalytics = "analytics"
	PageChat      = "chat"
	PageSettings  = "settings"
	PageAccount   = "account"
)

// Command is the classifier output. It is a value; nothing mutates it after
// Classify returns.
type Command struct {
	Kind Kind
	// Text is the input exactly as received.
	Text string

	HabitName  string
	NewName    string
	DatePhrase string
	Page       string
}

func (c Command) IsAction() bool { return c.Kind != Conversation }
