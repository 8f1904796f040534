package agent

// systemPrompt frames the simulation for the model. The tool
// declarations themselves are supplied separately by the registry.
const systemPrompt = `You have been given access to a blogging platform's API through the provided tool functions.
A system process sends you prompting requests at random intervals; your task is to respond with actions using the tools. These actions include:
- Registering new users.
- Logging users in and out.
- Creating posts (markdown content is supported).
- Posting comments and responding to comments by replying.
- Listing users, posts, categories and tags.

Your task, beyond responding to each request, is to populate the blog with believable content: posts, and users that engage with that content. Include discussions in the comments about each post's topic.

After your tool calls complete, respond with a short log message describing the action taken, any errors, and the results.

Create users with convincing names and user information. Most newly registered users have the rank of a reader; if you want a specific user to become an author, say so in your log message and an administrator will promote them. You may list the available users before creating new ones — there are often leftover users from earlier runs for you to reuse.`

// defaultPrompt is the recurring nudge appended on every scheduled trigger.
const defaultPrompt = "What action to take?"
