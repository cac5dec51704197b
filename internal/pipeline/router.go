package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Route is the branch of the stage graph a turn takes.
type Route string

const (
	// RouteMeta handles out-of-fiction commands and commits nothing.
	RouteMeta Route = "meta"
	// RouteMechanic resolves consequences before the encounter stage.
	RouteMechanic Route = "mechanic"
	// RouteEncounter skips resolution; used for talk and observation.
	RouteEncounter Route = "encounter"
)

// Action classes reported by the router.
const (
	ClassMeta        = "meta"
	ClassCombat      = "combat"
	ClassSocial      = "social"
	ClassMovement    = "movement"
	ClassAction      = "action"
	ClassDialogue    = "dialogue"
	ClassObservation = "observation"
	ClassFreeform    = "freeform"
)

// Intent is the router's classification of player input.
type Intent struct {
	Route              Route  `json:"route" yaml:"route"`
	ActionClass        string `json:"action_class" yaml:"action_class"`
	RequiresResolution bool   `json:"requires_resolution" yaml:"requires_resolution"`
}

// Router deterministically classifies free text. The zero value is not
// usable; use NewRouter.
type Router struct {
	fold     cases.Caser
	meta     map[string]bool
	combat   map[string]bool
	social   map[string]bool
	action   map[string]bool
	movement map[string]bool
	dialogue map[string]bool
	observe  map[string]bool
	// irregular maps inflected forms that suffix stripping cannot reach to
	// their base form.
	irregular map[string]string
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// NewRouter returns a router with the built-in vocabularies.
func NewRouter() Router {
	return Router{
		fold: cases.Fold(),
		meta: set("help", "recap", "status", "history", "quit", "save", "inventory"),
		combat: set("attack", "strike", "hit", "stab", "shoot", "slash", "punch", "kick",
			"kill", "fight", "parry", "block", "ambush", "wrestle", "disarm"),
		social: set("persuade", "convince", "lie", "bluff", "deceive", "threaten",
			"intimidate", "bribe", "charm", "trick", "flatter", "negotiate", "beg",
			"seduce", "manipulate", "coerce", "haggle"),
		action: set("grab", "steal", "take", "open", "break", "climb", "throw", "cast",
			"use", "pick", "jump", "sneak", "hide", "unlock", "push", "pull", "buy",
			"sell", "give", "drink", "eat", "light", "burn", "repair", "craft", "pickpocket"),
		movement: set("go", "walk", "travel", "head", "move", "enter", "leave",
			"return", "run", "flee", "follow", "cross"),
		dialogue: set("say", "ask", "tell", "talk", "greet", "whisper", "shout",
			"reply", "answer", "chat", "speak"),
		observe: set("look", "examine", "inspect", "listen", "watch", "read",
			"study", "observe", "search", "smell"),
		irregular: map[string]string{
			"lying": "lie", "lied": "lie",
			"fought": "fight", "struck": "strike", "stricken": "strike",
			"shot": "shoot", "slew": "kill", "slain": "kill",
			"stole": "steal", "stolen": "steal", "took": "take", "taken": "take",
			"broke": "break", "broken": "break", "threw": "throw", "thrown": "throw",
			"hid": "hide", "hidden": "hide", "gave": "give", "given": "give",
			"bought": "buy", "sold": "sell", "drank": "drink",
			"ate": "eat", "eaten": "eat", "lit": "light", "burnt": "burn",
			"snuck": "sneak", "sought": "search",
			"went": "go", "gone": "go", "ran": "run", "fled": "flee",
			"said": "say", "told": "tell", "spoke": "speak", "spoken": "speak",
		},
	}
}

// stems returns the base-form candidates for a folded word: the word itself,
// its irregular base, and the results of stripping -s, -es, -ed and -ing
// (undoubling a final consonant or restoring a silent e).
func (r Router) stems(w string) []string {
	out := []string{w}
	if base, ok := r.irregular[w]; ok {
		out = append(out, base)
	}
	for _, suffix := range []string{"ing", "ed", "es", "s", "d"} {
		root, ok := strings.CutSuffix(w, suffix)
		if !ok || len(root) < 2 {
			continue
		}
		out = append(out, root, root+"e")
		if n := len(root); n >= 3 && root[n-1] == root[n-2] {
			out = append(out, root[:n-1])
		}
	}
	return out
}

// has reports whether any stem of w is in vocab.
func (r Router) has(vocab map[string]bool, w string) bool {
	for _, s := range r.stems(w) {
		if vocab[s] {
			return true
		}
	}
	return false
}

// Normalize applies NFKC and Unicode case folding so full-width letters,
// ligatures and case variants match the vocabularies.
func (r Router) Normalize(text string) string {
	return r.fold.String(norm.NFKC.String(text))
}

func tokens(text string) []string {
	return strings.FieldsFunc(text, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '/'
	})
}

// Classify maps input to an Intent.
//
// Any combat, action or persuasion/deception word, in any inflection,
// forces the mechanic route with RequiresResolution wherever it appears.
// Wrapping an action in dialogue ("I say: I stabbed him") therefore cannot
// skip resolution. A leading slash only marks a meta command when the word
// after it is one; "/attack the guard" is classified as "attack the guard".
func (r Router) Classify(input string) Intent {
	text := strings.TrimSpace(r.Normalize(input))
	words := tokens(text)
	if len(words) > 0 && strings.HasPrefix(words[0], "/") {
		cmd := strings.TrimLeft(words[0], "/")
		if r.meta[cmd] {
			return Intent{Route: RouteMeta, ActionClass: ClassMeta}
		}
		words = words[1:]
		if cmd != "" {
			words = append([]string{cmd}, words...)
		}
	}
	if len(words) == 0 {
		return Intent{Route: RouteMeta, ActionClass: ClassMeta}
	}
	if len(words) == 1 && r.meta[words[0]] {
		return Intent{Route: RouteMeta, ActionClass: ClassMeta}
	}

	var combat, social, action, movement, dialogue, observe bool
	for _, w := range words {
		w = strings.Trim(w, "/")
		combat = combat || r.has(r.combat, w)
		social = social || r.has(r.social, w)
		action = action || r.has(r.action, w)
		movement = movement || r.has(r.movement, w)
		dialogue = dialogue || r.has(r.dialogue, w)
		observe = observe || r.has(r.observe, w)
	}
	dialogue = dialogue || strings.ContainsAny(text, "\"“”«»")

	switch {
	case combat:
		return Intent{Route: RouteMechanic, ActionClass: ClassCombat, RequiresResolution: true}
	case social:
		return Intent{Route: RouteMechanic, ActionClass: ClassSocial, RequiresResolution: true}
	case action:
		return Intent{Route: RouteMechanic, ActionClass: ClassAction, RequiresResolution: true}
	case movement:
		return Intent{Route: RouteMechanic, ActionClass: ClassMovement, RequiresResolution: true}
	case dialogue:
		return Intent{Route: RouteEncounter, ActionClass: ClassDialogue}
	case observe:
		return Intent{Route: RouteEncounter, ActionClass: ClassObservation}
	default:
		return Intent{Route: RouteEncounter, ActionClass: ClassFreeform}
	}
}
