package conversation

import "strings"

type replyGroup struct {
	keywords []string
	replies  []string
}

var followUpWords = []string{"also", "and", "what about", "how about", "tell me more", "more details", "continue", "go on"}

const followUpReply = "I'd love to continue our conversation! **Let me help you** with that next step. What specific area would you like to focus on?"

// Checked in order; the first group with a keyword in the message wins.
var replyGroups = []replyGroup{
	{
		keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon"},
		replies: []string{
			"Hello! **I'm Zelda**, your personal assistant. I'm here to help you stay organized and productive. What's on your mind?",
			"Hi there! **Ready to tackle your goals?** I'd love to help you organize your day. What would you like to work on?",
			"Good day! **Let's make today productive** together. How can I assist you?",
		},
	},
	{
		keywords: []string{"how are you", "how do you feel", "what's up"},
		replies: []string{
			"I'm doing great, thank you! **I'm here to support you**. What can I help you accomplish today?",
			"I'm excellent and **ready to help!** What's on your agenda?",
			"I'm at your service! **Let's focus on your goals**. What would you like to work on?",
		},
	},
	{
		keywords: []string{"habit", "routine", "daily", "exercise", "workout", "reading", "water"},
		replies: []string{
			"**Great thinking!** Building habits is so powerful. What specific habit would you like to start?",
			"I love helping with habits! **Small steps = big results.** What routine interests you?",
			"**Habits are game-changers!** What would you like to make consistent in your life?",
		},
	},
	{
		keywords: []string{"task", "work", "productive", "busy", "schedule", "plan", "organize"},
		replies: []string{
			"**Let's get organized!** What's the most important thing you need to tackle today?",
			"**Smart approach!** I can help you prioritize. What's on your to-do list?",
			"**I'm here to help!** What would you like to organize first?",
		},
	},
	{
		keywords: []string{"goal", "achieve", "success", "improve", "better", "progress"},
		replies: []string{
			"I'm excited to help you reach your goals! Every small step counts toward bigger achievements. What specific area would you like to focus on?",
			"Success is built one day at a time! Let's break down your goals into actionable steps. What would you like to work on first?",
			"Progress is the best motivator! I can help you track your improvements. What's your main focus right now?",
		},
	},
	{
		keywords: []string{"tired", "stressed", "difficult", "hard", "struggle", "help"},
		replies: []string{
			"I hear you, and what you're feeling is completely valid. Every challenge is an opportunity to grow stronger. Let's take this one step at a time.",
			"You're being so brave by reaching out! Even the smallest progress is still progress. What's one tiny thing we can do right now to make you feel better?",
			"I'm here for you! Life can be challenging, but you have more strength than you realize. Let's find a small, manageable way to move forward together.",
		},
	},
}

var defaultReplies = []string{
	"That's interesting! I'm here to help you with whatever you're working on. Whether it's building better habits, staying organized, or just having a friendly chat, I'm all ears!",
	"I appreciate you sharing that with me! I'm here to support you in creating positive changes in your life. How can we make today a little bit better?",
	"Thanks for talking with me! I love helping people discover their potential and build amazing routines. What aspect of your life would you like to improve?",
}

// FallbackReply picks a canned reply for text. hasContext marks an ongoing
// conversation, where follow-up phrasing gets a continuation reply. pick
// chooses an index in [0, n).
func FallbackReply(text string, hasContext bool, pick func(n int) int) string {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	})

	if hasContext && containsAny(lower, words, followUpWords) {
		return followUpReply
	}
	for _, g := range replyGroups {
		if containsAny(lower, words, g.keywords) {
			return g.replies[pick(len(g.replies))]
		}
	}
	return defaultReplies[pick(len(defaultReplies))]
}

// containsAny matches single-word keywords against whole words (plural s
// allowed) and phrases against the lowered text, so "hi" does not fire
// inside "this".
func containsAny(lower string, words []string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(k, " ") {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == k || w == k+"s" {
				return true
			}
		}
	}
	return false
}
