package chat

// Author identifies a message author on the platform.
type Author struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Marker flags special message presentation (paid messages, stickers,
// membership items). It is opaque to the sync engine; only the renderer
// interprets it.
type Marker struct {
	Kind   string `json:"kind"` // "superchat", "sticker", "membership"
	Detail string `json:"detail,omitempty"`
	Color  int64  `json:"color,omitempty"`
}

// ChatMessage is one chat event with its intended display instant.
// ShowtimeMs is milliseconds relative to video start in replay mode, and
// wall-clock milliseconds in live mode.
type ChatMessage struct {
	ID         string  `json:"id"`
	Author     Author  `json:"author"`
	Text       string  `json:"text"`
	ShowtimeMs int64   `json:"showtimeMs"`
	Marker     *Marker `json:"marker,omitempty"`
}

// Deleted carries the replacement text shown once a moderation event has
// struck a message.
type Deleted struct {
	ReplacedText string `json:"replacedText"`
}

// MessageAction wraps a ChatMessage for delivery. Reconciliation never
// mutates a shared action: a struck message gets a fresh MessageAction with
// Deleted populated before it enters the pending queue.
type MessageAction struct {
	Message ChatMessage `json:"message"`
	Deleted *Deleted    `json:"deleted,omitempty"`
}

// BonkAction hides all messages from one author.
type BonkAction struct {
	AuthorID     string `json:"authorId"`
	ReplacedText string `json:"replacedText"`
}

// DeletionAction hides a single message by id.
type DeletionAction struct {
	MessageID    string `json:"messageId"`
	ReplacedText string `json:"replacedText"`
}

// Misc kinds understood by the renderer. Pins and unpins are the only ones
// with dedicated action kinds downstream; everything else passes through
// as-is.
const (
	MiscPin   = "pin"
	MiscUnpin = "unpin"
)

// MiscAction is a pass-through event not subject to timing.
type MiscAction struct {
	Kind    string `json:"kind"`
	Payload []byte `json:"payload,omitempty"`
}

// Chunk is one parsed batch of chat events derived from a single network
// response. Continuation and TimeoutMs are polling hints for the source and
// are ignored by the sync engine.
type Chunk struct {
	Messages  []ChatMessage
	Bonks     []BonkAction
	Deletions []DeletionAction
	Misc      []MiscAction
	// Refresh means the platform restarted the chat stream; everything
	// buffered so far is stale.
	Refresh bool

	Continuation string
	TimeoutMs    int
}

// ActionKind discriminates the published action union.
type ActionKind string

const (
	KindMessages       ActionKind = "messages"
	KindBonk           ActionKind = "bonk"
	KindDelete         ActionKind = "delete"
	KindPin            ActionKind = "pin"
	KindUnpin          ActionKind = "unpin"
	KindMisc           ActionKind = "misc"
	KindForceUpdate    ActionKind = "forceUpdate"
	KindPlayerProgress ActionKind = "playerProgress"
)

// Action is what the engine publishes to the display consumer. Exactly one
// of the payload fields is meaningful for a given Kind:
//
//	messages, forceUpdate -> Messages (forceUpdate replaces visible history)
//	bonk                  -> Bonk
//	delete                -> Delete
//	pin, unpin, misc      -> Misc
//	playerProgress        -> ProgressMs
type Action struct {
	Kind       ActionKind       `json:"kind"`
	Messages   []*MessageAction `json:"messages,omitempty"`
	Bonk       *BonkAction      `json:"bonk,omitempty"`
	Delete     *DeletionAction  `json:"delete,omitempty"`
	Misc       *MiscAction      `json:"misc,omitempty"`
	ProgressMs float64          `json:"progressMs,omitempty"`
}
