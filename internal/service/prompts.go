package service

import "strings"

// describeImagePrompt is the stage 1 prompt sent with each image
const describeImagePrompt = `You are looking at an image shared in a cryptocurrency community.
Describe what the image shows. Then list every cryptocurrency that appears
in it (for example Bitcoin (BTC), Ethereum (ETH), Solana (SOL)) together with
the held amount and, if visible, the price paid and the currency of that price
(USD, EUR, CAD, ...).

Answer in exactly this format and nothing else:
Description: <description>
List of Crypto Currencies:
- <name>|<abbreviation>|<amount>|<price>|<price currency>

Leave a field empty when it is not shown, but always keep all four pipes.
If no cryptocurrency is shown, leave the list empty.`

// structurePromptTemplate is the stage 2 prompt; {{description}} is replaced
// with the stage 1 answer
const structurePromptTemplate = `You are an expert in cryptocurrency portfolios.
Below is the description of an image and a list of cryptocurrencies found in
it, one per line as <name>|<abbreviation>|<amount>|<price>|<price currency>.

Decide whether the image shows a cryptocurrency portfolio, meaning at least
one cryptocurrency is listed with an amount. Then convert the list into JSON.

Rules:
- "amount" and "price" must be plain numbers without currency symbols or
  thousands separators.
- Expand metric prefixes: 1.5k becomes 1500.0, 2M becomes 2000000.0.
- "price" is the total paid for the position. Use 0 when it is unknown.
- "currency" is a three letter code such as USD or EUR. Use USD when it is unknown.

Return only this JSON object, without any other text or code fences:
{"is_portfolio": true, "purchases": [{"name": "Bitcoin", "abbreviation": "BTC", "amount": 0.5, "price": 15000.0, "currency": "USD"}]}

Input:
{{description}}`

func structurePrompt(description string) string {
	return strings.Replace(structurePromptTemplate, "{{description}}", description, 1)
}
