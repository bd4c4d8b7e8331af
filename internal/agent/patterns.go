package agent

// Screen patterns per agent. All needles are lowercase; captures are
// lowercased before matching.

var (
	interruptHints = []string{"esc to interrupt", "ctrl+c to interrupt"}
	shortcutsHint  = []string{"? for shortcuts"}
	yesNo          = []string{"(y/n)", "[y/n]"}

	claudeWaiting = append([]string{
		"yes, allow",
		"yes, and always allow",
		"yes, and don't ask again",
		"allow once",
		"allow always",
		"enter to select",
		"enter to confirm",
		"esc to cancel",
		"esc to exit",
		"❯ 1.",
		"do you trust the files",
	}, yesNo...)

	// Claude's status line reads like "✦ Noodling… 42 tokens" while working.
	claudeThinking = []string{
		"accomplishing", "actioning", "actualizing", "baking", "booping", "brewing",
		"calculating", "cerebrating", "channelling", "churning", "clauding", "coalescing",
		"cogitating", "combobulating", "computing", "concocting", "conjuring", "considering",
		"contemplating", "cooking", "crafting", "creating", "crunching", "deciphering",
		"deliberating", "determining", "discombobulating", "divining", "doing", "effecting",
		"elucidating", "enchanting", "envisioning", "finagling", "flibbertigibbeting", "forging",
		"forming", "frolicking", "generating", "germinating", "hatching", "herding",
		"honking", "hustling", "ideating", "imagining", "incubating", "inferring",
		"jiving", "manifesting", "marinating", "meandering", "moseying", "mulling",
		"mustering", "musing", "noodling", "percolating", "perusing", "philosophising",
		"pondering", "pontificating", "processing", "puttering", "puzzling", "reticulating",
		"ruminating", "scheming", "schlepping", "shimmying", "shucking", "simmering",
		"smooshing", "spelunking", "spinning", "stewing", "sussing", "synthesizing",
		"thinking", "tinkering", "transmuting", "unfurling", "unravelling", "vibing",
		"wandering", "whirring", "wibbling", "wizarding", "working", "wrangling",
	}

	codexRunning = []string{"esc to interrupt"}
	codexWaiting = append([]string{
		"yes, proceed",
		"yes, continue",
		"press enter to confirm",
		"press enter to continue",
		"approve command",
		"allow once",
		"allow always",
		"❯ 1.",
		"› 1.",
		"enter to select",
		"esc to cancel",
	}, yesNo...)

	cursorWaiting = append([]string{
		"do you trust",
		"trust this workspace",
		"enter to select",
		"esc to cancel",
	}, yesNo...)

	openCodeRunning = []string{"esc interrupt"}
	openCodeIdle    = []string{"ctrl+p commands", "ctrl+t variants", "tab agents"}
	openCodeWaiting = append([]string{"permission required", "allow once", "allow always"}, yesNo...)
	// The input bar of OpenCode's prompt.
	openCodePromptBar = []string{"┃", "╹"}

	geminiIdle    = []string{"type your message"}
	geminiWaiting = append([]string{
		"allow",
		"approve",
		"execute?",
		"enter to select",
		"esc to cancel",
	}, yesNo...)

	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	shellPromptEnds = []string{"$", "#", "%", ">", "❯"}
)

// profiles holds each agent's rules, tried top to bottom; the first rule
// that matches decides the state. Agents that keep old output in
// scrollback (Codex) only trust the tail for prompts.
var profiles = map[Kind][]rule{
	ClaudeCode: {
		{tail, containsAny, interruptHints, Running},
		{tail, containsAny, spinnerFrames, Running},
		{tail, containsAny, shortcutsHint, Idle},
		{body, containsAny, interruptHints, Running},
		{body, containsAny, spinnerFrames, Running},
		{body, containsAny, claudeWaiting, WaitingForInput},
		{tail, wordWithEllipsis, claudeThinking, Running},
		{prompt, linePrefix, []string{"❯"}, Idle},
	},
	Codex: {
		{tail, containsAny, codexRunning, Running},
		{tail, containsAny, spinnerFrames, Running},
		{tail, containsAny, shortcutsHint, Idle},
		{body, containsAny, codexRunning, Running},
		{body, containsAny, spinnerFrames, Running},
		{tail, containsAny, codexWaiting, WaitingForInput},
	},
	OpenCode: {
		{tail, containsAny, openCodeRunning, Running},
		{tail, containsAny, spinnerFrames, Running},
		{tail, containsAny, openCodeIdle, Idle},
		{body, containsAny, openCodeRunning, Running},
		{body, containsAny, spinnerFrames, Running},
		{body, containsAny, openCodeWaiting, WaitingForInput},
		{tail, containsAny, openCodePromptBar, Idle},
	},
	CursorAgent: {
		{body, containsAny, interruptHints, Running},
		{body, containsAny, spinnerFrames, Running},
		{body, containsAny, cursorWaiting, WaitingForInput},
	},
	Gemini: {
		{tail, containsAny, geminiIdle, Idle},
		{body, containsAny, interruptHints, Running},
		{body, containsAny, spinnerFrames, Running},
		{body, containsAny, geminiWaiting, WaitingForInput},
	},
}

// fallback applies to every pane after its agent's own rules.
var fallback = []rule{
	{tail, containsAny, spinnerFrames, Running},
	{lastLine, lineSuffix, shellPromptEnds, Idle},
}
