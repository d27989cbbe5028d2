package agent

const fence = "```"

// Role names, also used as llm.Request.Agent.
const (
	RolePlanner   = "planner"
	RoleCoder     = "coder"
	RoleVerifier  = "verifier"
	RoleRouter    = "router"
	RoleDebugger  = "debugger"
	RoleAnalyzer  = "analyzer"
	RoleFinalizer = "finalizer"
)

// DefaultOutputFormat is used by the finalizer when no format was requested.
const DefaultOutputFormat = "Return the answer as-is"

const analyzerSystem = `You describe data files for a data analysis assistant.

Report the file type, a one or two sentence description, the schema (column
or key names with their types), a few sample rows and the record count when
it can be determined.

Reply with a single JSON object in this shape:
` + fence + `json
{
  "file_type": "csv",
  "description": "Daily sales per region",
  "schema": {"region": "string", "amount": "float"},
  "sample_data": "region,amount\nnorth,12.5",
  "row_count": 1000
}
` + fence

const analyzerUser = `Analyze this data file.

File path: {{.Path}}
File extension: {{.Extension}}
File size: {{.SizeBytes}} bytes

Content (first {{.PreviewLines}} lines or {{.PreviewBytes}} bytes):
` + fence + `
{{.Preview}}
` + fence + `

Reply with the JSON object only.`

const plannerSystem = `You plan data analysis work one step at a time.

Propose exactly ONE next step that moves the plan toward answering the query.
The step must be implementable in Python, start with an action verb and name
the files and columns it uses. Never propose writing results to files; the
final result is printed.

Reply with the step description only.`

const plannerUser = `Query: {{.Query}}

Data files:
{{.FileDescriptionsText}}

Current plan:
{{.StepsText}}

Last execution:
{{.ExecutionSummary}}

What is the next step?`

const coderSystem = `You write complete, runnable Python programs that implement a data
analysis plan. Use pandas for tabular data, use the file paths and column
names exactly as described, and include every import.

Do not print intermediate results. Print only the answer, framed like this:

print("=" * 50)
print("FINAL RESULT:")
print("=" * 50)
print(result)
print("=" * 50)`

const coderUser = `Query: {{.Query}}

Data files:
{{.FileDescriptionsText}}

Plan steps to implement:
{{.StepsText}}

Previous program:
` + fence + `python
{{.Code}}
` + fence + `

Previous execution:
{{.ExecutionSummary}}

Write one program implementing ALL active steps. Reply with the code in a
` + fence + `python block.`

const verifierSystem = `You decide whether an execution result fully answers the query.

A "FINAL RESULT:" block that contains the complete answer is sufficient, even
when other output precedes it.

Reply with exactly one word on the first line, SUFFICIENT or INSUFFICIENT,
followed by a one or two sentence explanation.`

const verifierUser = `Query: {{.Query}}

Plan steps executed:
{{.StepsText}}

Program:
` + fence + `python
{{.Code}}
` + fence + `

Execution:
{{.ExecutionSummary}}

Is this SUFFICIENT or INSUFFICIENT?`

const routerSystem = `The current plan does not yet answer the query. Decide how to continue.

ADD_STEP means the approach is right but incomplete.
BACKTRACK:N means step N (0-based) is wrong; steps N onward are discarded.

Put the decision alone on the first line, then explain. Examples:
ADD_STEP
The data is loaded and filtered; a groupby is still needed.

BACKTRACK:2
Step 2 used the column 'amount' instead of 'eur_amount'.`

const routerUser = `Query: {{.Query}}

Current plan:
{{.StepsText}}

Execution:
{{.ExecutionSummary}}

Data files:
{{.FileDescriptionsText}}

ADD_STEP or BACKTRACK:N?`

const debuggerSystem = `You fix Python programs that failed. Read the traceback, find the
root cause (wrong column names, bad paths, type mismatches, missing imports,
syntax errors) and fix it while keeping the program's intent.

Reply with the complete corrected program in a ` + fence + `python block.`

const debuggerUser = `Program:
` + fence + `python
{{.Code}}
` + fence + `

Traceback:
{{.Traceback}}

Data files:
{{.Files}}

Reply with the corrected program only.`

const finalizerSystem = `You extract the final answer from program output and format it as
requested. Reply with the answer only.`

const finalizerUser = `Query: {{.Query}}

Execution:
{{.Execution}}

Output format: {{.OutputFormat}}

What is the answer?`
