package generate

const generationPrompt = `You are analyzing quantitative finance interview questions to create a comprehensive categorization system.

## Your Task:
Read through ALL the sample questions and identify RECURRING patterns, themes, and topics. Create categories that will help students organize and study these questions effectively.

## What to Look For:

### 1. Mathematical Domains
What areas of mathematics appear repeatedly across questions?
- Examples: Probability Theory, Calculus, Linear Algebra, Statistics, Combinatorics, etc.
- Only include if you see multiple questions using these concepts

### 2. Mathematical Techniques & Concepts
What specific methods or concepts are used frequently?
- Examples: Expected Value, Integration, Conditional Probability, Eigenvalues, Derivatives, Recursion, etc.
- Only include techniques that appear in multiple questions

### 3. Problem Objects & Scenarios
What physical objects or scenarios appear in multiple questions?
- Examples: Dice, Coins, Cards, Balls/Urns, etc.
- IMPORTANT: Only include objects that appear in 5+ questions. Skip one-off objects.

### 4. Problem Types
What types of problems do you see repeatedly?
- Examples: Optimization, Brainteasers, Game Theory, Geometric Probability, etc.

## Critical Rules:
1. **Base categories ONLY on what you actually see in the questions** - not on general quant knowledge
2. **Look for patterns that appear in MULTIPLE questions** (ideally 5+)
3. **Skip one-off scenarios** - If only one question mentions cherries, don't create a "Cherries" category
4. **Aim for 25-40 comprehensive categories** that cover the major themes
5. **Be specific enough to be useful** - "Probability Theory" and "Expected Value" are both valid (one broad, one specific)
6. **Use clear, professional names** - No cutesy names

## Output Format:
Return ONLY a JSON array of category strings, nothing else. No explanation.

Example format: ["Probability Theory", "Expected Value", "Calculus", "Integration", "Linear Algebra", "Dice", "Coins", "Brainteasers", "Optimization", "Random Variables", "Conditional Probability", "Combinatorics"]`
