package probe

// Schemas the create and list responses are validated against. Only the
// presence of the fields is checked, not their format.
const (
	statusCheckSchemaName = "status_check"
	statusCheckSchema     = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "client_name", "timestamp"]
}`

	statusCheckListSchemaName = "status_check_list"
	statusCheckListSchema     = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array"
}`
)
