package taxonomy

const (
	ContinuousRandomVariables = "Continuous Random Variables"
	DiscreteRandomVariables   = "Discrete Random Variables"
)

// DefaultLabels is the fixed vocabulary in display order.
var DefaultLabels = []string{
	"Linear Algebra",
	"Uniform Random Variables",
	"Normal Random Variables",
	"Exponential Random Variables",
	"Hypergeometric Random Variables",
	"Binomial Random Variables",
	"Poisson Random Variables",
	ContinuousRandomVariables,
	DiscreteRandomVariables,
	"Coins",
	"Dice",
	"Cards",
	"Grids",
	"Martingales",
	"Markov Chains",
	"Stochastic Processes",
	"Random Walks",
	"Game Theory",
	"Calculus",
	"Geometry",
	"Algebraic Manipulation",
	"Combinatorics",
}

// RandomVariableGroup: a named distribution family wins over the broad
// discrete/continuous labels.
var RandomVariableGroup = ExclusiveGroup{
	Name: "random_variable_types",
	Specific: []string{
		"Uniform Random Variables",
		"Normal Random Variables",
		"Exponential Random Variables",
		"Hypergeometric Random Variables",
		"Binomial Random Variables",
		"Poisson Random Variables",
	},
	Generic: []string{
		ContinuousRandomVariables,
		DiscreteRandomVariables,
	},
}

// Default returns a fresh copy of the built-in taxonomy.
func Default() *Taxonomy {
	t, err := New(DefaultLabels, []ExclusiveGroup{RandomVariableGroup}, DefaultInstructions)
	if err != nil {
		panic("taxonomy: built-in taxonomy is invalid: " + err.Error())
	}
	return t
}

const DefaultInstructions = `You are categorizing quantitative finance interview questions. You MUST actually understand the problem and solution method before categorizing.

## CRITICAL: Understand the Problem First!
1. **Read the question carefully** - What is the problem actually asking?
2. **Think about the solution method** - What mathematical techniques are needed?
3. **Check if content is complete** - Scraping may have cut off text, be cautious
4. **Only assign categories if you're confident** - Don't guess based on keywords alone

## Available Categories:
{categories}

## Category Definitions (Use ONLY if the problem actually uses these):

**Random Variable Types** (assign ONLY if the problem explicitly involves these distributions):
- **Uniform Random Variables**: Problem involves uniform distribution U(a,b) or discrete uniform
- **Normal Random Variables**: Problem involves normal/Gaussian distribution N(μ,σ²)
- **Exponential Random Variables**: Problem involves exponential distribution Exp(λ)
- **Hypergeometric Random Variables**: Problem involves sampling without replacement from finite population
- **Binomial Random Variables**: Problem involves binomial distribution Bin(n,p) - repeated independent trials
- **Poisson Random Variables**: Problem involves Poisson distribution Pois(λ) - rare events
- **Continuous Random Variables**: Problem uses continuous distributions (normal, exponential, uniform continuous)
- **Discrete Random Variables**: Problem uses discrete distributions (binomial, Poisson, discrete uniform, hypergeometric)

**Object Types**:
- **Coins**: Problem involves coin flips/tosses
- **Dice**: Problem involves dice rolls
- **Cards**: Problem involves cards/deck of cards
- **Grids**: Problem involves grid paths/lattice paths (like Catalan numbers)

**Stochastic Processes** (ONLY if the problem involves time-dependent random processes):
- **Martingales**: Problem uses martingale property (E[X_{n+1}|X_n] = X_n)
- **Markov Chains**: Problem involves Markov chain (future depends only on current state)
- **Stochastic Processes**: General stochastic process (Brownian motion, etc.)
- **Random Walks**: Problem involves random walk (sum of random steps)

**Mathematical Domains**:
- **Linear Algebra**: Problem uses matrices, eigenvalues, eigenvectors, linear transformations
- **Calculus**: Problem uses derivatives, integrals, optimization via calculus
- **Geometry**: Problem involves geometric shapes, areas, volumes, distances
- **Algebraic Manipulation**: Problem requires algebraic simplification/manipulation
- **Combinatorics**: Problem involves counting, permutations, combinations
- **Game Theory**: Problem involves strategic decision-making, Nash equilibrium

## Rules:
1. **Think through the solution method** - What would you actually do to solve this?
2. **Be precise** - Don't assign "Discrete Random Variables" just because something is discrete
3. **Don't assign both Discrete AND Uniform** - Choose the most specific one
4. **Cards problems are usually Combinatorics + Cards** - Not necessarily "Discrete Random Variables"
5. **If uncertain, return []** - Better to miss a category than assign wrong one
6. **Try multiple times** - If unsure, think again before responding

## Examples:
- **Coin flip question**: Uses binomial distribution → ["Coins", "Binomial Random Variables"]
- **Poker hands**: Counting combinations → ["Cards", "Combinatorics"] (NOT "Discrete Random Variables")
- **Free sundae**: If it's a counting problem → ["Combinatorics"], if it doesn't fit → []
- **Matrix eigenvalue problem**: ["Linear Algebra"]
- **Derivative optimization**: ["Calculus"]
- **Grid path counting**: ["Grids", "Combinatorics"]
- **Brainteaser with no clear math**: []

## Output Format:
Return ONLY a JSON array of category strings. No explanation.
`
