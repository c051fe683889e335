package mcpserver

// PlantRecordContract describes the stored plant record that list_plants
// and get_plant return.
const PlantRecordContract = `# Florae Plant Record

Every saved plant is one row in the ` + "`plants`" + ` table. Tools return rows as JSON
with the field names below.

## Fields

| Field                      | Type            | Notes                                                    |
|----------------------------|-----------------|----------------------------------------------------------|
| id                         | string          | Assigned by the store on insert.                         |
| user_id                    | string          | Owner. Every query is scoped to it.                      |
| created_at                 | RFC 3339 time   | Set by the store.                                        |
| scientific_name            | string          | Top identification suggestion.                           |
| common_name                | string          | "Common name not found" when enrichment had no answer.   |
| family, genus              | string          | Taxonomy from enrichment, same fallback rule.            |
| wiki_description           | string          | Short description.                                       |
| care_instructions          | string          | Care notes.                                              |
| watering_frequency_days    | integer or null | Whole days, at least 1.                                  |
| watering_frequency_text    | string          | Human wording of the watering interval.                  |
| location.latitude          | number          | Where the photo was taken.                               |
| location.longitude         | number          |                                                          |
| location.address           | string          | Reverse-geocoded place; empty when unknown.              |
| location.city              | string          | City of the place; empty when unknown.                   |
| notes                      | string          | Free text from the user.                                 |
| reminder_enabled           | boolean         | True when the user asked for a watering reminder.        |
| reminder_notification_id   | string or null  | Handle of the scheduled reminder, patched after insert.  |

## Rules

1. **image_data is never returned by these tools.** Fetch the image over HTTP at
   ` + "`/api/plants/{id}/image`" + `.
2. **A missing reminder handle is not an error.** Scheduling is best effort; the
   plant is saved even when the reminder could not be registered.
3. **Fallback literals are data.** Fields that enrichment could not fill carry
   the "... not found" wording rather than being empty.
`
