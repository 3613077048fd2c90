// Package respond turns pipeline outcomes into the single envelope returned
// to clients. Every reply is safe to show and speak: internal error text
// never reaches it.
package respond

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lukasbauer/habitvoice/internal/capture"
	"github.com/lukasbauer/habitvoice/internal/habits"
	"github.com/lukasbauer/habitvoice/internal/intent"
	"github.com/lukasbauer/habitvoice/internal/resolve"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

// Frontend action types.
const (
	ActionNavigate      = "navigate"
	ActionLogout        = "logout"
	ActionRefresh       = "refresh"
	ActionRefreshHabits = "refresh_habits"
)

// ErrNoSpeech marks a recording whose transcript came back empty.
var ErrNoSpeech = errors.New("respond: no speech detected")

type FrontendAction struct {
	Type       string `json:"type"`
	NavigateTo string `json:"navigate_to,omitempty"`
}

type HabitAction struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
	// Mutated is set when the habit store changed.
	Mutated bool `json:"mutated"`
}

// Envelope is the response to one turn.
type Envelope struct {
	TurnID         string          `json:"turn_id,omitempty"`
	Reply          string          `json:"reply"`
	Success        bool            `json:"success"`
	ActionTaken    bool            `json:"action_taken"`
	HabitAction    *HabitAction    `json:"habit_action"`
	FrontendAction *FrontendAction `json:"frontend_action"`
}

// Mutated reports whether the turn changed the user's habits.
func (e Envelope) Mutated() bool {
	return e.HabitAction != nil && e.HabitAction.Mutated
}

var pageRoutes = map[string]string{
	intent.PageHome:      "/",
	intent.PageHabits:    "/habits",
	intent.PageAnalytics: "/analytics",
	intent.PageChat:      "/chat",
	intent.PageSettings:  "/settings",
	intent.PageAccount:   "/account",
}

// Route maps a page name to its client route; unknown pages go home.
func Route(page string) string {
	if r, ok := pageRoutes[page]; ok {
		return r
	}
	return "/"
}

// FromAction wraps an executed habit command. Mutations ask the client to
// refetch its habits.
func FromAction(res habits.Result) Envelope {
	env := Envelope{
		Reply:       res.Message,
		Success:     res.Success,
		ActionTaken: true,
		HabitAction: &HabitAction{Action: res.Kind.String(), Data: res.Data, Mutated: res.Mutated},
	}
	if res.Mutated {
		env.FrontendAction = &FrontendAction{Type: ActionRefreshHabits}
	}
	return env
}

// FromAppCommand answers commands that act on the client rather than on
// stored habits.
func FromAppCommand(cmd intent.Command) Envelope {
	env := Envelope{Success: true, ActionTaken: true}
	data := map[string]any{}

	switch cmd.Kind {
	case intent.Navigate:
		route := Route(cmd.Page)
		if cmd.Page == intent.PageAccount {
			env.Reply = "Opening your account settings!"
		} else {
			env.Reply = fmt.Sprintf("Taking you to the %s page!", pageTitle(cmd.Page))
		}
		env.FrontendAction = &FrontendAction{Type: ActionNavigate, NavigateTo: route}
		data["route"], data["page"] = route, cmd.Page
	case intent.Logout:
		env.Reply = "Logging you out now. See you soon!"
		env.FrontendAction = &FrontendAction{Type: ActionLogout, NavigateTo: "/login"}
	case intent.Refresh:
		env.Reply = "Refreshing the page for you!"
		env.FrontendAction = &FrontendAction{Type: ActionRefresh}
	case intent.ClearData:
		env.Success = false
		env.Reply = "For safety, please use the settings page to clear data. I can't do that through voice commands."
		env.FrontendAction = &FrontendAction{Type: ActionNavigate, NavigateTo: "/settings"}
	case intent.Help:
		env.Reply = helpText
		data["help_shown"] = true
	case intent.AppInfo:
		env.Reply = appInfoText
		data["info_shown"] = true
	case intent.ShowToday:
		env.Reply = "Here's your schedule for today! Opening your habits page to show today's progress."
		env.FrontendAction = &FrontendAction{Type: ActionNavigate, NavigateTo: "/habits"}
	case intent.ShowCalendar:
		env.Reply = "Opening your habit calendar!"
		env.FrontendAction = &FrontendAction{Type: ActionNavigate, NavigateTo: "/habits"}
	default:
		return FromFailure(fmt.Errorf("respond: %s is not an app command", cmd.Kind), resolve.ResolvedCommand{Command: cmd})
	}

	env.HabitAction = &HabitAction{Action: cmd.Kind.String(), Data: data}
	return env
}

// FromConversation wraps a conversational reply. Nothing was acted on.
func FromConversation(reply string) Envelope {
	return Envelope{Reply: reply, Success: true}
}

// FromFailure explains err to the user. rc carries whatever was resolved
// before the failure and is used to name the habit or date in question.
func FromFailure(err error, rc resolve.ResolvedCommand) Envelope {
	return Envelope{Reply: failureReply(err, rc), Success: false}
}

func failureReply(err error, rc resolve.ResolvedCommand) string {
	name := rc.Habit.Requested
	if name == "" {
		name = rc.HabitName
	}

	switch {
	case errors.Is(err, resolve.ErrAmbiguous):
		return fmt.Sprintf("I found more than one habit matching '%s': %s. Which one did you mean? Please say the full name.",
			name, joinOr(rc.Habit.Candidates))
	case errors.Is(err, resolve.ErrNotFound), errors.Is(err, habits.ErrNotFound):
		return fmt.Sprintf("I couldn't find a habit called '%s'. Say 'show my habits' to hear what you're tracking.", name)
	case errors.Is(err, resolve.ErrDateParse):
		return fmt.Sprintf("I couldn't work out the date '%s'. Try something like 'yesterday' or 'September 20th'.", rc.DatePhrase)
	case errors.Is(err, habits.ErrDuplicateHabit):
		if rc.Kind == intent.Rename {
			return fmt.Sprintf("You already have a habit called '%s'. Please pick a different name.", rc.NewName)
		}
		return fmt.Sprintf("You're already tracking '%s'. You can mark it as done instead.", name)

	case errors.Is(err, ErrNoSpeech):
		return "No speech detected, please try again and speak a little closer to the microphone."
	case errors.Is(err, capture.ErrPermissionDenied):
		return "I can't access your microphone. Please allow microphone access and try again."
	case errors.Is(err, capture.ErrUnsupported):
		return "Voice input isn't available on this device. You can type your message instead."
	case errors.Is(err, stt.ErrServiceDisabled), errors.Is(err, stt.ErrModelLoadFailed):
		return "Voice recognition is unavailable right now. You can type your message in the chat instead."
	case errors.Is(err, stt.ErrTimeout):
		return "That recording took too long to transcribe. Please try a shorter message."
	case errors.Is(err, stt.ErrTranscriptionFailed):
		return "I had trouble understanding your voice command. Please try speaking more clearly or use the text chat instead."
	}
	return "Sorry, I encountered an error processing your message. Please try again."
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}

func pageTitle(page string) string {
	if page == "" {
		return "Home"
	}
	return strings.ToUpper(page[:1]) + page[1:]
}

const helpText = `Here are the voice commands you can use:

**Navigation**
- "Go to home" / "Take me home"
- "Open habits"
- "Go to analytics" / "Show stats"
- "Open chat"
- "Go to settings"

**Habits**
- "Add a habit to [habit name]"
- "Mark [habit] as complete"
- "Rename [habit] to [new name]"
- "Delete [habit] habit"
- "Show my habits"
- "How am I doing with [habit]?"

**App controls**
- "Refresh page"
- "Log out"
- "Show account"
- "Help" / "What can I do?"

**Information**
- "What's today's schedule?"
- "Show calendar"
- "About this app"

Just speak naturally and I'll understand what you want to do!`

const appInfoText = `**About Zelda**

Zelda is your habit tracking and productivity assistant. I can help you:

- Track and build positive habits
- Analyze your progress with detailed analytics
- Have natural conversations about your goals
- Control everything with voice commands

I'm here to help you become your best self through consistent habit building!`
