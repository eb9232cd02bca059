package ai

import "fmt"

// ExtractPrompt is the instruction template for relationship extraction
// between two chat participants. The six data slots are, in order: the two
// user profiles, the per-month message histogram, the top frequent words,
// the sampled conversation excerpt, and the required output example.
const ExtractPrompt = `
# Task Context
You are an information extraction system. From the chat data provided below you extract entities, relationships and properties describing the relationship between the two users, so that a knowledge graph can be built from your output.
You must output a single valid JSON object and nothing else. Do not include any explanatory text.

# Detailed Task Description & Rules
- Entity: a person, event, place or topic.
- Relationship: describes one kind of interaction between two entities. Cover the relationships that tie the two users together as completely as possible, for example:
  * social: classmate, friend, colleague, relative
  * emotional: likes, admires, dating, ambiguous
  * mentoring: teaches, guides, helps
  * other significant patterns: chats frequently, long gaps without contact
- Direction: add a bidirectional relationship when the relation is mutual, a directed one when it is one-sided.
- One relationship per edge: never mix several relationship kinds into one edge. Use multiple edges instead.
- Properties carry only necessary supporting detail (time ranges, interaction intensity). Property values must be strings, numbers, booleans or flat lists of one of those types. Nothing else is allowed.
- Label the two primary users (the two sides of the chat) as "User". Entities that appear frequently in the conversation get a label matching their kind; when unsure, use "other".

# Background Data
Profile of user 1: %s
Profile of user 2: %s
Messages exchanged per month (JSON): %s
Most frequent words in the conversation (JSON, top 20 after stopword removal): %s
Full text of the busiest days (JSON): %s

# Output Formatting
Follow this JSON structure exactly. Include every property shown in the example and add more when the data supports them:
%s
Return only the JSON object, with no explanatory text.
`

// OutputJSONExample is the annotated output contract embedded in the
// prompt so the model mirrors exact field names. The comments are for the
// model; the parsed response must be plain JSON.
const OutputJSONExample = `
{ // property values must be strings, numbers, booleans or flat lists; nothing else
  "nodes": [ // one node per entity
    {
      "id": "wxid_xxx",       // unique node id (the user id for users)
      "label": "User",        // "User" for the two chat participants; other entities get a label matching their kind, or "other" when unsure
      "nickname": "xxx",
      "remark": "",           // optional
      "account": "123456789",
      "gender": 1,            // 1 male, 2 female, 0 unknown
      "signature": "",
      "country": "country",   // optional
      "province": "province", // optional
      "city": "city",         // optional
      "mobile": "",           // optional
      "label_ids": []         // optional; weigh heavily when present
    }
  ],
  "relations": [ // one relation per edge between two node ids
    {
      "start": "wxid_xxx",
      "end": "wxid_yyy",
      "type": "Friend", // short verb phrase for directed relations, short noun phrase for mutual ones
      "properties": {
        "month": ["yyyy-mm", "yyyy-mm"],    // months the interaction happened
        "total_msg_count": 123,
        "relationship_summary": "chat very frequently, close to each other"
      }
    }
  ]
}
`

// BuildExtractionPrompt renders the extraction instruction for one pair.
// All inputs must already be serialized; they are embedded verbatim and
// the function performs no I/O, so identical inputs always produce an
// identical prompt.
func BuildExtractionPrompt(
	profile1JSON string,
	profile2JSON string,
	monthHistogramJSON string,
	topWordsJSON string,
	sampleJSON string,
	outputExample string,
) string {
	return fmt.Sprintf(
		ExtractPrompt,
		profile1JSON,
		profile2JSON,
		monthHistogramJSON,
		topWordsJSON,
		sampleJSON,
		outputExample,
	)
}
