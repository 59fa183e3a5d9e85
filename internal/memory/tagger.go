package memory

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Tags applied by the tagger and the tier pipeline.
const (
	TagHappy        = "happy"
	TagSad          = "sad"
	TagAngry        = "angry"
	TagAnxious      = "anxious"
	TagCombat       = "combat"
	TagRaid         = "raid"
	TagInjured      = "injured"
	TagDeath        = "death"
	TagTaskComplete = "task-complete"
	TagChitchat     = "chitchat"
	TagDeepTalk     = "deep-talk"
	TagQuarrel      = "quarrel"
	TagCooking      = "cooking"
	TagBuilding     = "building"
	TagPlanting     = "planting"
	TagMining       = "mining"
	TagResearch     = "research"
	TagMedical      = "medical"

	TagImportant  = "important"
	TagUserEdited = "user-edited"
	TagNotes      = "notes"

	TagAISummary   = "ai-summary"
	TagRuleSummary = "rule-summary"
	TagDeepArchive = "deep-archive"
)

// ImportantThreshold is the importance above which an entry is marked important.
const ImportantThreshold = 0.8

// Rule maps content substrings to a tag. A match also applies Also and
// raises importance to at least MinImportance.
type Rule struct {
	Tag           string   `toml:"tag" json:"tag"`
	Keywords      []string `toml:"keywords" json:"keywords"`
	Also          []string `toml:"also" json:"also,omitempty"`
	MinImportance float64  `toml:"min_importance" json:"min_importance,omitempty"`
}

// DefaultRules returns the built-in tag table, grouped as emotion, event,
// social and occupation rules.
func DefaultRules() []Rule {
	return []Rule{
		// Emotion
		{Tag: TagHappy, Keywords: []string{"开心", "高兴", "快乐", "愉快", "happy", "glad", "joy"}},
		{Tag: TagSad, Keywords: []string{"悲伤", "难过", "伤心", "哭泣", "sad", "cried", "grief"}},
		{Tag: TagAngry, Keywords: []string{"愤怒", "生气", "暴怒", "发火", "angry", "furious", "rage"}},
		{Tag: TagAnxious, Keywords: []string{"焦虑", "担心", "紧张", "不安", "anxious", "worried", "nervous"}},

		// Event
		{Tag: TagCombat, Keywords: []string{"战斗", "打斗", "交战", "combat", "battle"}},
		{Tag: TagRaid, Keywords: []string{"袭击", "攻击", "raid", "attack"}},
		{Tag: TagInjured, Keywords: []string{"受伤", "伤害", "injured", "hurt"}},
		{Tag: TagDeath, Keywords: []string{"死亡", "去世", "died", "death"}, Also: []string{TagImportant}, MinImportance: 0.9},
		{Tag: TagTaskComplete, Keywords: []string{"完成", "任务", "finished", "completed"}},

		// Social
		{Tag: TagChitchat, Keywords: []string{"闲聊", "chitchat", "small talk"}},
		{Tag: TagDeepTalk, Keywords: []string{"深谈", "deep talk", "deep conversation"}},
		{Tag: TagQuarrel, Keywords: []string{"争吵", "吵架", "quarrel", "fight"}},

		// Occupation
		{Tag: TagCooking, Keywords: []string{"烹饪", "做饭", "cook"}},
		{Tag: TagBuilding, Keywords: []string{"建造", "建筑", "build", "construct"}},
		{Tag: TagPlanting, Keywords: []string{"种植", "植物", "plant", "grow"}},
		{Tag: TagMining, Keywords: []string{"采矿", "挖矿", "mine", "mining"}},
		{Tag: TagResearch, Keywords: []string{"研究", "科研", "research"}},
		{Tag: TagMedical, Keywords: []string{"医疗", "治疗", "医治", "medical", "heal"}},
	}
}

var separators = map[rune]bool{
	' ': true, '，': true, '。': true, '、': true, '！': true,
	'？': true, '：': true, '\n': true, '\r': true,
}

var stopWords = map[string]bool{
	"的": true, "了": true, "是": true, "在": true, "有": true, "和": true,
	"就": true, "不": true, "我": true, "你": true, "他": true, "她": true,
	"它": true, "这": true, "那": true, "个": true, "吗": true, "呢": true,
	"啊": true, "吧": true, "对": true, "说": true, "着": true, "把": true,
	"被": true, "给": true, "从": true, "到": true, "为": true, "以": true,
	"用": true, "要": true, "会": true, "能": true, "可以": true, "已经": true,
	"正在": true, "刚刚": true,
}

// ExtractKeywords splits content on the separator set and returns unique
// tokens longer than one rune that are not stop words, in first-seen order.
func ExtractKeywords(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool { return separators[r] })
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if utf8.RuneCountInString(f) <= 1 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Tagger derives keywords and tags from entry content.
//
// Tag only adds to an entry's sets, so re-running it is idempotent. The rule
// table may be swapped at runtime with SetRules; Tag is safe to call
// concurrently with SetRules.
type Tagger struct {
	rules atomic.Pointer[[]Rule]
}

// NewTagger creates a tagger. A nil or empty rule table selects DefaultRules.
func NewTagger(rules []Rule) *Tagger {
	t := &Tagger{}
	t.SetRules(rules)
	return t
}

// SetRules replaces the rule table.
func (t *Tagger) SetRules(rules []Rule) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		normalized[i] = Rule{
			Tag:           r.Tag,
			Keywords:      kw,
			Also:          append([]string(nil), r.Also...),
			MinImportance: Clamp01(r.MinImportance),
		}
	}
	t.rules.Store(&normalized)
}

// Rules returns a copy of the active rule table.
func (t *Tagger) Rules() []Rule {
	p := t.rules.Load()
	if p == nil {
		return nil
	}
	out := make([]Rule, len(*p))
	copy(out, *p)
	return out
}

// Tag populates e's keywords and tags from its content and flags.
func (t *Tagger) Tag(e *Entry) {
	if e == nil {
		return
	}
	if e.Content != "" {
		for _, k := range ExtractKeywords(e.Content) {
			e.AddKeyword(k)
		}

		lower := strings.ToLower(e.Content)
		for _, r := range t.activeRules() {
			if !matchesAny(lower, r.Keywords) {
				continue
			}
			e.AddTag(r.Tag)
			for _, also := range r.Also {
				e.AddTag(also)
			}
			if r.MinImportance > e.Importance {
				e.SetImportance(r.MinImportance)
			}
		}
	}

	if e.UserEdited {
		e.AddTag(TagUserEdited)
	}
	if e.Notes != "" {
		e.AddTag(TagNotes)
	}
	if e.Importance > ImportantThreshold {
		e.AddTag(TagImportant)
	}
}

func (t *Tagger) activeRules() []Rule {
	if p := t.rules.Load(); p != nil {
		return *p
	}
	return DefaultRules()
}

func matchesAny(content string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}
